// Package device provides the process-wide audio output handle. The oto
// backend plays a synth.Context through the sound card; the null backend
// keeps the same graph running against a wall clock and produces silence,
// which is what callers get whenever the platform has no audio.
package device

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"weathersound/internal/synth"
)

// ErrUnavailable means the platform could not open an audio output.
var ErrUnavailable = errors.New("device: audio output unavailable")

// State is the device lifecycle state.
type State int32

const (
	Suspended State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "suspended"
}

// Device is an output that renders one synth.Context.
type Device interface {
	// Context is the graph this device renders.
	Context() *synth.Context
	State() State
	// Resume starts (or restarts) output. It is idempotent.
	Resume() error
	Suspend() error
	// Available reports whether sound actually reaches a speaker.
	Available() bool
}

const (
	BackendOto  = "oto"
	BackendNull = "null"
)

// Options configures Open.
type Options struct {
	Backend string
	// StartSuspended models platforms that only unlock audio after a user gesture.
	StartSuspended bool
	// Clock drives the null device's timeline.
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Open returns a device for opts.Backend. It never fails: when the requested
// backend cannot be opened a null device is returned instead.
func Open(opts Options) Device {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	switch opts.Backend {
	case BackendNull:
		return NewNull(clock, opts.StartSuspended)
	case BackendOto, "":
		d, err := OpenOto(opts.StartSuspended, logger)
		if err == nil {
			logger.Info("audio device opened", "backend", BackendOto, "sample_rate", synth.SampleRate)
			return d
		}
		logger.Warn("audio init failed (continuing without sound)", "error", err)
	default:
		logger.Warn("unknown audio backend (continuing without sound)", "backend", opts.Backend)
	}
	return NewNull(clock, opts.StartSuspended)
}

// Null is a silent device. Its timeline follows the wall clock so automation
// and teardown behave exactly as they would with real output.
type Null struct {
	ctx   *synth.Context
	state atomic.Int32
}

// NewNull creates a silent device on clock.
func NewNull(clock clockwork.Clock, startSuspended bool) *Null {
	d := &Null{ctx: synth.NewContext(synth.WithWallClock(clock))}
	if !startSuspended {
		d.state.Store(int32(Running))
	}
	return d
}

func (d *Null) Context() *synth.Context { return d.ctx }
func (d *Null) State() State            { return State(d.state.Load()) }
func (d *Null) Available() bool         { return false }

func (d *Null) Resume() error {
	d.state.Store(int32(Running))
	return nil
}

func (d *Null) Suspend() error {
	d.state.Store(int32(Suspended))
	return nil
}
