// Package macro contains the capture/replay engine: the quantized
// Recorder, the timed Player, and the Session state machine that decides
// when either of them may run.
//
// Maintenance notes:
//   - The session flags are individually atomic. Flags are only ever set
//     to true inside Tick while the transition mutex is held; workers and
//     Close only clear them. Keep it that way or the "never recording and
//     playing at once" guarantee no longer holds.
//   - The published Recording is replaced wholesale by the recorder and
//     copied once by the player. Never append to it in place.
//   - Workers pace themselves through the injected clock. Tests drive them
//     with clock.Fake; workers must never call time.Sleep directly.
package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"Retrace/clock"
)

// State is the externally visible phase of a Session.
type State int

const (
	StateIdle State = iota
	StateRecording
	// StateStopping means recording was switched off and the recorder is
	// finishing its last quantum before publishing.
	StateStopping
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StatePlaying:
		return "playing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configure a Session.
type Options struct {
	Quantum      time.Duration
	TickInterval time.Duration
	Source       Source
	Sink         Sink
	Triggers     []Trigger
	Clock        clock.Clock
	Logger       *slog.Logger
	// OnError receives adapter failures that ended a worker. It runs on
	// the worker goroutine.
	OnError func(error)
}

// Session owns the published recording and the recording/playback flags,
// and spawns one worker per transition into Recording or Playing.
type Session struct {
	quantum   time.Duration
	recorder  *Recorder
	player    *Player
	scheduler *Scheduler
	logger    *slog.Logger
	onError   func(error)

	recording       atomic.Bool
	playing         atomic.Bool
	requestRecord   atomic.Bool
	requestPlayback atomic.Bool
	requestStop     atomic.Bool
	recorderRunning atomic.Bool

	// transition serializes Tick and Close.
	transition sync.Mutex
	closed     bool

	mu     sync.Mutex
	buffer Recording

	workers       sync.WaitGroup
	schedulerOnce sync.Once
}

// NewSession validates opts and returns an idle Session.
func NewSession(opts Options) (*Session, error) {
	if opts.Quantum <= 0 {
		return nil, errors.New("quantum must be positive")
	}
	if opts.TickInterval <= 0 {
		return nil, errors.New("tick interval must be positive")
	}
	if opts.Source == nil {
		return nil, errors.New("event source is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("event sink is required")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		quantum:  opts.Quantum,
		recorder: NewRecorder(opts.Source, clk, opts.Quantum),
		player:   NewPlayer(opts.Sink, clk, opts.Quantum),
		logger:   logger,
		onError:  opts.OnError,
	}
	if s.onError == nil {
		s.onError = func(err error) {
			logger.Error("session worker failed", "error", err)
		}
	}
	s.scheduler = NewScheduler(s, clk, opts.TickInterval, opts.Triggers, logger)
	return s, nil
}

// StartSchedulerLoop starts the trigger scheduler. Only the first call
// has an effect; the loop runs until ctx is cancelled.
func (s *Session) StartSchedulerLoop(ctx context.Context) {
	s.schedulerOnce.Do(func() {
		go s.scheduler.Run(ctx)
	})
}

// RequestRecordToggle asks the next tick to start or stop recording.
func (s *Session) RequestRecordToggle() { s.requestRecord.Store(true) }

// RequestPlayback asks the next tick to replay the current recording.
func (s *Session) RequestPlayback() { s.requestPlayback.Store(true) }

// RequestStop asks the next tick to end recording or playback.
func (s *Session) RequestStop() { s.requestStop.Store(true) }

// Tick evaluates the pending requests together with the triggers observed
// by the caller and performs at most one transition. It never blocks on
// capture or injection.
func (s *Session) Tick(observed Triggers) {
	s.transition.Lock()
	defer s.transition.Unlock()
	if s.closed {
		return
	}

	if s.requestStop.Swap(false) || observed.Stop {
		s.stopLocked()
		return
	}

	if s.requestRecord.Swap(false) || observed.Record {
		switch {
		case s.playing.Load():
			s.logger.Debug("record trigger ignored during playback")
		case s.recording.Load():
			s.stopRecordingLocked()
		case s.recorderRunning.Load():
			s.logger.Debug("record trigger ignored while recorder finishes")
		default:
			s.startRecordingLocked()
		}
		return
	}

	if s.requestPlayback.Load() || observed.Playback {
		// While busy the request stays pending: the finishing player clears
		// it, and stopping a recording clears it too.
		if s.playing.Load() || s.recording.Load() || s.recorderRunning.Load() {
			return
		}
		s.mu.Lock()
		snapshot := slices.Clone(s.buffer)
		s.mu.Unlock()
		if len(snapshot) == 0 {
			s.requestPlayback.Store(false)
			s.logger.Debug("playback trigger ignored, nothing recorded")
			return
		}
		s.startPlaybackLocked(snapshot)
	}
}

func (s *Session) startRecordingLocked() {
	s.recording.Store(true)
	s.recorderRunning.Store(true)
	s.logger.Info("recording started", "quantum", s.quantum)

	s.workers.Add(1)
	go s.runRecorder()
}

// stopRecordingLocked also drops any playback request made while the
// recording was running.
func (s *Session) stopRecordingLocked() {
	s.recording.Store(false)
	s.requestPlayback.Store(false)
	s.logger.Debug("recording stop requested")
}

func (s *Session) stopLocked() {
	s.requestRecord.Store(false)
	switch {
	case s.recording.Load():
		s.stopRecordingLocked()
	case s.playing.Load():
		s.playing.Store(false)
		s.logger.Debug("playback stop requested")
	default:
		s.requestPlayback.Store(false)
	}
}

func (s *Session) startPlaybackLocked(snapshot Recording) {
	s.playing.Store(true)
	s.logger.Info("playback started", "samples", len(snapshot))

	s.workers.Add(1)
	go s.runPlayer(snapshot)
}

func (s *Session) runRecorder() {
	defer s.workers.Done()

	rec, err := s.recorder.Record(s.recording.Load)
	s.recording.Store(false)
	if err != nil {
		s.recorderRunning.Store(false)
		s.onError(fmt.Errorf("record: %w", err))
		return
	}

	s.mu.Lock()
	s.buffer = rec
	s.mu.Unlock()
	s.recorderRunning.Store(false)

	s.logger.Info("recording stopped",
		"samples", len(rec),
		"moves", rec.Moves(),
		"duration", rec.Duration(s.quantum))
}

func (s *Session) runPlayer(rec Recording) {
	defer s.workers.Done()

	played, err := s.player.Play(rec, s.playing.Load)
	s.playing.Store(false)
	s.requestPlayback.Store(false)
	if err != nil {
		s.onError(fmt.Errorf("playback: %w", err))
		return
	}
	s.logger.Info("playback finished", "samples", len(rec), "played", played)
}

// State returns the current phase.
func (s *Session) State() State {
	switch {
	case s.playing.Load():
		return StatePlaying
	case s.recording.Load():
		return StateRecording
	case s.recorderRunning.Load():
		return StateStopping
	default:
		return StateIdle
	}
}

// Status is a consistent view of a Session for display.
type Status struct {
	State           State
	Samples         int
	Moves           int
	Length          time.Duration
	PendingRecord   bool
	PendingPlayback bool
}

// Snapshot returns the current Status.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	rec := s.buffer
	s.mu.Unlock()

	return Status{
		State:           s.State(),
		Samples:         len(rec),
		Moves:           rec.Moves(),
		Length:          rec.Duration(s.quantum),
		PendingRecord:   s.requestRecord.Load(),
		PendingPlayback: s.requestPlayback.Load(),
	}
}

// Wait blocks until no worker is running. It must not race with Tick;
// use Close for shutdown.
func (s *Session) Wait() {
	s.workers.Wait()
}

// Close stops any recording or playback, rejects further ticks and waits
// for the workers. A recording in progress is still published.
func (s *Session) Close() {
	s.transition.Lock()
	s.closed = true
	s.recording.Store(false)
	s.playing.Store(false)
	s.transition.Unlock()

	s.workers.Wait()
}
