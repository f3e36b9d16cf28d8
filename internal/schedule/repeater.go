package schedule

import (
	"time"
)

// Source is the randomness a Repeater draws from. *synth.Rand satisfies it.
type Source interface {
	Float64() float64
	RangeF(min, max float64) float64
}

// Secondary is an optional follow-up strike after a successful tick.
type Secondary struct {
	Probability float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
	GainScale   float64
}

// Config describes one randomized event schedule.
type Config struct {
	Name string
	// InitialDelay is the wait before the first tick. Zero draws an
	// ordinary interval instead.
	InitialDelay time.Duration
	// FireFirst makes the first tick fire regardless of Probability.
	FireFirst   bool
	MinInterval time.Duration
	MaxInterval time.Duration
	Probability float64
	Secondary   *Secondary
}

// Repeater is an armed, self-rescheduling event. Each tick fires with the
// configured probability and then schedules exactly one successor, so ticks
// never overlap. All methods must be called from the loop goroutine.
type Repeater struct {
	loop *Loop
	rnd  Source
	cfg  Config
	fire func(gainScale float64)

	armed     bool
	tick      Handle
	nextAt    time.Time
	secondary map[Handle]struct{}

	ticks int
	fired int
}

// NewRepeater returns a disarmed repeater that calls fire on each strike.
func NewRepeater(loop *Loop, rnd Source, cfg Config, fire func(gainScale float64)) *Repeater {
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	return &Repeater{
		loop:      loop,
		rnd:       rnd,
		cfg:       cfg,
		fire:      fire,
		secondary: make(map[Handle]struct{}),
	}
}

func (r *Repeater) Name() string { return r.cfg.Name }

// Arm starts the schedule. Arming an armed repeater is a no-op.
func (r *Repeater) Arm() {
	if r.armed {
		return
	}
	r.armed = true
	first := r.cfg.InitialDelay
	if first <= 0 {
		first = r.interval()
	}
	r.scheduleTick(first, true)
}

// Disarm cancels the pending tick and any pending secondary strike. It is
// idempotent and safe on a repeater that was never armed.
func (r *Repeater) Disarm() {
	r.armed = false
	if r.tick != 0 {
		r.loop.Cancel(r.tick)
		r.tick = 0
	}
	for h := range r.secondary {
		r.loop.Cancel(h)
		delete(r.secondary, h)
	}
	r.nextAt = time.Time{}
}

func (r *Repeater) Armed() bool { return r.armed }

// NextFire returns when the next tick is due.
func (r *Repeater) NextFire() (time.Time, bool) {
	if r.tick == 0 {
		return time.Time{}, false
	}
	return r.nextAt, true
}

// Pending counts this repeater's outstanding timers.
func (r *Repeater) Pending() int {
	n := len(r.secondary)
	if r.tick != 0 {
		n++
	}
	return n
}

// Ticks and Fired count elapsed ticks and strikes (secondaries included).
func (r *Repeater) Ticks() int { return r.ticks }
func (r *Repeater) Fired() int { return r.fired }

func (r *Repeater) scheduleTick(d time.Duration, first bool) {
	r.nextAt = r.loop.Clock().Now().Add(d)
	r.tick = r.loop.Schedule(d, func() { r.onTick(first) })
}

func (r *Repeater) onTick(first bool) {
	r.tick = 0
	if !r.armed {
		return
	}
	r.ticks++
	if (first && r.cfg.FireFirst) || r.rnd.Float64() < r.cfg.Probability {
		r.strike(1)
		r.maybeSecondary()
	}
	if r.armed {
		r.scheduleTick(r.interval(), false)
	}
}

func (r *Repeater) maybeSecondary() {
	sec := r.cfg.Secondary
	if sec == nil || r.rnd.Float64() >= sec.Probability {
		return
	}
	d := r.between(sec.MinDelay, sec.MaxDelay)
	var h Handle
	h = r.loop.Schedule(d, func() {
		delete(r.secondary, h)
		if r.armed {
			r.strike(sec.GainScale)
		}
	})
	r.secondary[h] = struct{}{}
}

func (r *Repeater) strike(scale float64) {
	r.fired++
	r.fire(scale)
}

func (r *Repeater) interval() time.Duration {
	return r.between(r.cfg.MinInterval, r.cfg.MaxInterval)
}

func (r *Repeater) between(lo, hi time.Duration) time.Duration {
	return time.Duration(r.rnd.RangeF(float64(lo), float64(hi)))
}
