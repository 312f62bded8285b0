// Package control defines lightweight command messages used by the UI to
// request actions from the application command loop. The command loop is
// the only place that talks to the macro session on behalf of the window.
package control

import "fmt"

// CommandType enumerates supported command operations.
type CommandType int

const (
	CmdRecordToggle CommandType = iota
	CmdPlayback
	CmdStop
)

func (t CommandType) String() string {
	switch t {
	case CmdRecordToggle:
		return "record-toggle"
	case CmdPlayback:
		return "playback"
	case CmdStop:
		return "stop"
	}
	return fmt.Sprintf("CommandType(%d)", int(t))
}

// Command is the message sent from UI to AppManager.commandLoop. The
// optional Reply channel can be used by the commandLoop to confirm
// completion back to the sender (useful for keeping UI state in sync).
type Command struct {
	Type  CommandType
	Reply chan error // optional reply channel
}

// ForRune maps a typed rune to a command using the configured hotkey
// letters. Matching ignores case.
func ForRune(r rune, record, playback, stop byte) (Command, bool) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	switch {
	case r == rune(record) && record != 0:
		return Command{Type: CmdRecordToggle}, true
	case r == rune(playback) && playback != 0:
		return Command{Type: CmdPlayback}, true
	case r == rune(stop) && stop != 0:
		return Command{Type: CmdStop}, true
	}
	return Command{}, false
}
