// Package main contains the application wiring and the AppManager which
// connects the macro session to the window, the audio cues and the
// command loop.
//
// Maintenance notes / tips:
//   - Concurrency model: UI callbacks never touch the session directly.
//     They enqueue a control.Command and the single command-loop goroutine
//     (see `commandLoop`) turns it into a session request. The session
//     itself acts on requests only on its own scheduler tick.
//   - `tick` polls the session snapshot for the window and the audio cues.
//     It only reads; it is safe to run in headless mode without controls.
//   - `cmdCh` is a buffered channel. EnqueueCommand drops commands when
//     the channel stays full, which only happens if the command loop is
//     gone; dropping keeps the UI responsive.
//   - `controls` is set once the window exists and may be nil in headless
//     mode; always read it under `controlsLock`.
package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"Retrace/config"
	"Retrace/control"
	"Retrace/i18n"
	"Retrace/input"
	"Retrace/macro"
	"Retrace/ui"
)

const refreshInterval = 100 * time.Millisecond

// Cue names.
const (
	cueRecordStart = "record-start"
	cueRecordStop  = "record-stop"
	cuePlayStart   = "play-start"
	cuePlayDone    = "play-done"
)

type note struct {
	freq float64
	dur  time.Duration
}

var cueNotes = map[string][]note{
	cueRecordStart: {{660, 60 * time.Millisecond}, {880, 90 * time.Millisecond}},
	cueRecordStop:  {{880, 60 * time.Millisecond}, {660, 90 * time.Millisecond}},
	cuePlayStart:   {{990, 80 * time.Millisecond}},
	cuePlayDone:    {{520, 60 * time.Millisecond}, {520, 60 * time.Millisecond}},
}

// AppManager is the main application struct, holding all state.
type AppManager struct {
	mainWindow fyne.Window
	session    *macro.Session
	hotkeys    input.Hotkeys
	// typedHotkeys enables the window's typed-rune hotkeys. They are off
	// when a global backend already reports the same keys.
	typedHotkeys bool
	logger       *slog.Logger

	cmdCh     chan control.Command
	cmdCtx    context.Context
	cmdCancel context.CancelFunc

	controlsLock sync.Mutex
	controls     *ui.Controls
	lastState    macro.State

	audioBuffers map[string]*beep.Buffer
	speakerLock  sync.Mutex
}

// NewAppManager creates a new application manager around session.
func NewAppManager(session *macro.Session, cfg config.Config, hotkeys input.Hotkeys, typedHotkeys bool, logger *slog.Logger) *AppManager {
	a := &AppManager{
		session:      session,
		hotkeys:      hotkeys,
		typedHotkeys: typedHotkeys,
		logger:       logger,
		audioBuffers: make(map[string]*beep.Buffer),
	}
	if cfg.Audio.Enabled {
		a.loadCues(cfg.Audio.Volume)
	}

	a.cmdCh = make(chan control.Command, 64)
	a.cmdCtx, a.cmdCancel = context.WithCancel(context.Background())
	go a.commandLoop()

	return a
}

// EnqueueCommand posts a command to the internal command loop.
func (a *AppManager) EnqueueCommand(cmd control.Command) {
	select {
	case a.cmdCh <- cmd:
	case <-time.After(150 * time.Millisecond):
		a.logger.Warn("command dropped", "command", cmd.Type)
	}
}

func (a *AppManager) commandLoop() {
	for {
		select {
		case <-a.cmdCtx.Done():
			return
		case cmd := <-a.cmdCh:
			a.logger.Debug("command", "type", cmd.Type)
			switch cmd.Type {
			case control.CmdRecordToggle:
				a.session.RequestRecordToggle()
			case control.CmdPlayback:
				a.session.RequestPlayback()
			case control.CmdStop:
				a.session.RequestStop()
			}
			if cmd.Reply != nil {
				select {
				case cmd.Reply <- nil:
				default:
				}
			}
		}
	}
}

func (a *AppManager) loadCues(volume float64) {
	format := beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		a.logger.Warn("audio disabled: failed to initialize speaker", "error", err)
		return
	}

	for name, notes := range cueNotes {
		buf, err := synthCue(format, volume, notes)
		if err != nil {
			a.logger.Warn("failed to build cue", "cue", name, "error", err)
			continue
		}
		a.audioBuffers[name] = buf
	}
	a.logger.Debug("audio cues ready", "count", len(a.audioBuffers))
}

// synthCue renders notes back to back into a buffer scaled by volume.
func synthCue(format beep.Format, volume float64, notes []note) (*beep.Buffer, error) {
	buf := beep.NewBuffer(format)
	for _, n := range notes {
		tone, err := generators.SineTone(format.SampleRate, n.freq)
		if err != nil {
			return nil, err
		}
		buf.Append(&effects.Gain{
			Streamer: beep.Take(format.SampleRate.N(n.dur), tone),
			Gain:     volume - 1,
		})
	}
	return buf, nil
}

// PlaySound plays a cue.
func (a *AppManager) PlaySound(name string) {
	b, ok := a.audioBuffers[name]
	if !ok {
		return
	}

	a.speakerLock.Lock()
	defer a.speakerLock.Unlock()

	speaker.Play(b.Streamer(0, b.Len()))
}

// cueFor returns the cue for a state change, or "" for none.
func cueFor(prev, next macro.State) string {
	switch {
	case prev == next:
		return ""
	case next == macro.StateRecording:
		return cueRecordStart
	case prev == macro.StateRecording:
		return cueRecordStop
	case next == macro.StatePlaying:
		return cuePlayStart
	case prev == macro.StatePlaying:
		return cuePlayDone
	}
	return ""
}

// SetControls sets the widgets refreshed by tick.
func (a *AppManager) SetControls(c *ui.Controls) {
	a.controlsLock.Lock()
	defer a.controlsLock.Unlock()
	a.controls = c
}

// RefreshControls redraws the controls from the current snapshot.
func (a *AppManager) RefreshControls() {
	a.controlsLock.Lock()
	c := a.controls
	a.controlsLock.Unlock()
	if c != nil {
		c.Update(a.session.Snapshot())
	}
}

// DisableControls greys out the buttons when no input backend is
// available.
func (a *AppManager) DisableControls(reason string) {
	a.controlsLock.Lock()
	c := a.controls
	a.controlsLock.Unlock()
	if c != nil {
		c.Disable(reason)
	}
}

func (a *AppManager) tick(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.observe()
		}
	}
}

func (a *AppManager) observe() {
	st := a.session.Snapshot()
	if cue := cueFor(a.lastState, st.State); cue != "" {
		a.PlaySound(cue)
	}
	a.lastState = st.State

	a.controlsLock.Lock()
	c := a.controls
	a.controlsLock.Unlock()
	if c != nil {
		c.Update(st)
	}
}

// HandleKeyRune handles key presses for the application.
func (a *AppManager) HandleKeyRune(r rune) {
	if !a.typedHotkeys {
		return
	}
	if cmd, ok := control.ForRune(r, a.hotkeys.Record, a.hotkeys.Playback, a.hotkeys.Stop); ok {
		a.EnqueueCommand(cmd)
	}
}

// ReportError logs a worker failure and shows it when a window exists.
func (a *AppManager) ReportError(err error) {
	a.logger.Error("session failed", "error", err)
	if a.mainWindow == nil {
		return
	}
	fyne.Do(func() {
		dialog.ShowError(err, a.mainWindow)
	})
}

// ShowInfoDialog shows a dialog with the about text.
func (a *AppManager) ShowInfoDialog(title string, minSize fyne.Size) {
	text := widget.NewLabel(i18n.About())
	text.Wrapping = fyne.TextWrapWord

	scrollableContent := container.NewVScroll(text)
	scrollableContent.SetMinSize(minSize)

	dialog.ShowCustom(title, i18n.T("Close"), scrollableContent, a.mainWindow)
}

// Shutdown attempts to gracefully stop the AppManager command loop. It
// cancels the internal context and allows background goroutines to exit.
func (a *AppManager) Shutdown() {
	if a.cmdCancel != nil {
		a.cmdCancel()
	}
}
