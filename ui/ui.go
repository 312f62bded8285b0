package ui

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"

	"Retrace/control"
	"Retrace/i18n"
	"Retrace/macro"
)

const (
	WindowWidth  = 360
	WindowHeight = 220
	StatusSize   = 26
	CornerRadius = 10
	ButtonsGap   = 8
)

var (
	IdleColor      = color.NRGBA{R: 0x1f, G: 0x24, B: 0x30, A: 0xff}
	RecordingColor = color.NRGBA{R: 0xf2, G: 0x87, B: 0x79, A: 0xff}
	PlayingColor   = color.NRGBA{R: 0x5c, G: 0xcf, B: 0xe6, A: 0xff}
)

type App interface {
	EnqueueCommand(cmd control.Command)
	HandleKeyRune(rune)
	ShowInfoDialog(title string, minSize fyne.Size)
	SetControls(*Controls)
	RefreshControls()
}

// Controls holds the widgets that follow the session state.
type Controls struct {
	RecordButton *widget.Button
	ReplayButton *widget.Button
	StopButton   *widget.Button

	stateText  *canvas.Text
	detail     *widget.Label
	background *canvas.Rectangle
	disabled   bool
}

// Disable turns the window into a read-only status display, used when the
// input devices could not be opened.
func (c *Controls) Disable(reason string) {
	fyne.Do(func() {
		c.disabled = true
		c.RecordButton.Disable()
		c.ReplayButton.Disable()
		c.StopButton.Disable()
		c.detail.SetText(reason)
	})
}

// Update redraws the controls for st.
func (c *Controls) Update(st macro.Status) {
	fyne.Do(func() {
		if c.disabled {
			return
		}
		c.stateText.Text = StateLabel(st.State)
		c.stateText.Refresh()
		c.detail.SetText(StatusLine(st))
		c.background.FillColor = withAlpha(StateColor(st.State), 0x59)
		c.background.Refresh()

		if st.State == macro.StateRecording {
			c.RecordButton.SetText(i18n.T("Stop"))
			c.RecordButton.Importance = widget.DangerImportance
		} else {
			c.RecordButton.SetText(i18n.T("Record"))
			c.RecordButton.Importance = widget.HighImportance
		}
		setEnabled(c.RecordButton, st.State == macro.StateIdle || st.State == macro.StateRecording)
		setEnabled(c.ReplayButton, st.State == macro.StateIdle && st.Samples > 0)
		setEnabled(c.StopButton, st.State == macro.StateRecording || st.State == macro.StatePlaying)
		c.RecordButton.Refresh()
	})
}

func setEnabled(b *widget.Button, enabled bool) {
	if enabled {
		b.Enable()
	} else {
		b.Disable()
	}
}

// StateLabel is the headline shown for a state.
func StateLabel(s macro.State) string {
	switch s {
	case macro.StateRecording:
		return i18n.T("Recording")
	case macro.StateStopping:
		return i18n.T("Finishing")
	case macro.StatePlaying:
		return i18n.T("Replaying")
	}
	return i18n.T("Idle")
}

// StateColor is the accent drawn behind the headline.
func StateColor(s macro.State) color.Color {
	switch s {
	case macro.StateRecording, macro.StateStopping:
		return RecordingColor
	case macro.StatePlaying:
		return PlayingColor
	}
	return IdleColor
}

// StatusLine summarizes the published recording.
func StatusLine(st macro.Status) string {
	if st.Samples == 0 {
		return i18n.T("Nothing recorded")
	}
	return fmt.Sprintf("%s · %s %s", formatLength(st.Length), humanize.Comma(int64(st.Moves)), i18n.T("moves"))
}

func formatLength(d time.Duration) string {
	d = d.Round(time.Millisecond)
	if d < time.Second {
		return d.String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func commandButton(a App, label string, cmd control.CommandType) *widget.Button {
	return widget.NewButton(label, func() {
		reply := make(chan error, 1)
		a.EnqueueCommand(control.Command{Type: cmd, Reply: reply})
		select {
		case <-reply:
		case <-time.After(200 * time.Millisecond):
		}
		a.RefreshControls()
	})
}

func BuildStatus(c *Controls) fyne.CanvasObject {
	c.stateText = canvas.NewText(i18n.T("Idle"), color.White)
	c.stateText.TextStyle.Bold = true
	c.stateText.TextSize = StatusSize
	c.stateText.Alignment = fyne.TextAlignCenter

	c.detail = widget.NewLabel(i18n.T("Nothing recorded"))
	c.detail.Alignment = fyne.TextAlignCenter

	c.background = canvas.NewRectangle(withAlpha(IdleColor, 0x59))
	c.background.CornerRadius = CornerRadius
	c.background.SetMinSize(fyne.NewSize(WindowWidth-40, 110))

	content := container.New(layout.NewVBoxLayout(),
		layout.NewSpacer(),
		container.New(layout.NewCenterLayout(), c.stateText),
		container.New(layout.NewCenterLayout(), c.detail),
		layout.NewSpacer(),
	)
	return container.NewPadded(container.NewStack(c.background, content))
}

func BuildFooter(a App, c *Controls, hotkeys string) fyne.CanvasObject {
	c.RecordButton = commandButton(a, i18n.T("Record"), control.CmdRecordToggle)
	c.RecordButton.Importance = widget.HighImportance
	c.ReplayButton = commandButton(a, i18n.T("Replay"), control.CmdPlayback)
	c.ReplayButton.Disable()
	c.StopButton = commandButton(a, i18n.T("Stop"), control.CmdStop)
	c.StopButton.Disable()

	gap := func() fyne.CanvasObject {
		r := canvas.NewRectangle(color.Transparent)
		r.SetMinSize(fyne.NewSize(ButtonsGap, 0))
		return r
	}
	buttons := container.NewHBox(
		layout.NewSpacer(),
		c.RecordButton, gap(), c.ReplayButton, gap(), c.StopButton,
		layout.NewSpacer(),
	)

	helpButton := NewTappableContainer(widget.NewIcon(theme.QuestionIcon()), func() {
		a.ShowInfoDialog(i18n.T("About Retrace"), fyne.NewSize(360, 200))
	})
	hint := canvas.NewText(hotkeys, theme.Color(theme.ColorNamePlaceHolder))
	hint.TextSize = theme.CaptionTextSize()

	bottom := container.New(layout.NewBorderLayout(nil, nil, helpButton, nil),
		helpButton,
		container.New(layout.NewCenterLayout(), hint),
	)
	return container.NewVBox(buttons, bottom)
}

// HotkeyHint renders the hotkey legend shown under the buttons.
func HotkeyHint(record, playback, stop byte) string {
	parts := []string{
		fmt.Sprintf("%c %s", record, i18n.T("Record")),
		fmt.Sprintf("%c %s", playback, i18n.T("Replay")),
		fmt.Sprintf("%c %s", stop, i18n.T("Stop")),
	}
	return strings.Join(parts, "   ")
}

func CreateMainWindow(a App, fyneApp fyne.App, hotkeys string) fyne.Window {
	title := fyneApp.Metadata().Name
	if title == "" {
		title = "Retrace"
	}
	w := fyneApp.NewWindow(title)

	c := &Controls{}
	status := BuildStatus(c)
	footer := BuildFooter(a, c, hotkeys)
	a.SetControls(c)

	w.Canvas().SetOnTypedRune(a.HandleKeyRune)

	w.SetContent(container.NewBorder(nil, footer, nil, nil, status))
	w.Resize(fyne.NewSize(WindowWidth, WindowHeight))
	w.SetFixedSize(true)
	return w
}

// TappableContainer makes any canvas object respond to a primary tap.
type TappableContainer struct {
	widget.BaseWidget
	Content         fyne.CanvasObject
	OnTappedPrimary func()
}

func NewTappableContainer(c fyne.CanvasObject, onP func()) *TappableContainer {
	t := &TappableContainer{
		Content:         c,
		OnTappedPrimary: onP,
	}
	t.ExtendBaseWidget(t)
	return t
}

func (t *TappableContainer) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewHBox(t.Content, layout.NewSpacer()))
}

func (t *TappableContainer) Tapped(_ *fyne.PointEvent) {
	if t.OnTappedPrimary != nil {
		t.OnTappedPrimary()
	}
}

func withAlpha(c color.Color, alpha uint8) color.NRGBA {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: alpha}
}
