package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hajimehoshi/oto/v2"

	"weathersound/internal/synth"
)

// sampleFormat is 32-bit float (oto.FormatFloat32LE), matching synth.Context.Read.
const sampleFormat = 0

var (
	otoOnce sync.Once
	otoDev  *Oto
	otoErr  error
)

// Oto plays a frame-clocked synth.Context through the system mixer.
// oto allows one context per process, so the device is a singleton that is
// never closed.
type Oto struct {
	ctx    *synth.Context
	oc     *oto.Context
	player oto.Player
	ready  chan struct{}
	logger *slog.Logger

	mu    sync.Mutex
	state State
	live  bool // ready has fired and the player is playing
}

// OpenOto opens (once) the process-wide oto device.
func OpenOto(startSuspended bool, logger *slog.Logger) (*Oto, error) {
	otoOnce.Do(func() {
		otoDev, otoErr = openOto(startSuspended, logger)
	})
	return otoDev, otoErr
}

func openOto(startSuspended bool, logger *slog.Logger) (*Oto, error) {
	oc, ready, err := oto.NewContext(synth.SampleRate, synth.ChannelCount, sampleFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d := &Oto{
		ctx:    synth.NewContext(),
		oc:     oc,
		ready:  ready,
		logger: logger,
		state:  Running,
	}
	if startSuspended {
		d.state = Suspended
	}
	d.player = oc.NewPlayer(d.ctx)
	go d.waitReady()
	return d, nil
}

// waitReady starts playback once the driver is up, honouring a suspend
// (or resume) requested in the meantime.
func (d *Oto) waitReady() {
	<-d.ready
	d.mu.Lock()
	defer d.mu.Unlock()
	d.player.Play()
	d.live = true
	if d.state == Suspended {
		if err := d.oc.Suspend(); err != nil {
			d.logger.Debug("audio suspend failed", "error", err)
		}
	}
}

func (d *Oto) Context() *synth.Context { return d.ctx }
func (d *Oto) Available() bool         { return true }

func (d *Oto) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Oto) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Running {
		return nil
	}
	d.state = Running
	if !d.live {
		return nil
	}
	return d.oc.Resume()
}

func (d *Oto) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Suspended {
		return nil
	}
	d.state = Suspended
	if !d.live {
		return nil
	}
	return d.oc.Suspend()
}
