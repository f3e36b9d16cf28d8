package synth

import (
	"math"
	"sort"
)

// minExpValue is the floor for exponential ramps, which cannot reach zero.
const minExpValue = 1e-4

type curve uint8

const (
	curveSet curve = iota
	curveLinear
	curveExp
)

type event struct {
	curve curve
	t, v  float64
}

// Param is an automatable value: a sorted timeline of set/ramp events plus
// optional audio-rate modulation from connected nodes.
type Param struct {
	ctx      *Context
	value    float64
	min, max float64
	events   []event
	mods     []*node
}

func newParam(ctx *Context, value, min, max float64) *Param {
	return &Param{ctx: ctx, value: value, min: min, max: max}
}

// SetValue drops all automation and holds v.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.events = p.events[:0]
	p.value = v
}

// SetValueAtTime jumps to v at t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.compact()
	p.insert(event{curve: curveSet, t: t, v: v})
}

// LinearRampToValueAtTime ramps linearly from the previous event to v at t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.compact()
	p.anchor()
	p.insert(event{curve: curveLinear, t: t, v: v})
}

// ExponentialRampToValueAtTime ramps exponentially from the previous event to
// v at t. Non-positive targets are clamped to a tiny positive value.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) {
	if v < minExpValue {
		v = minExpValue
	}
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.compact()
	p.anchor()
	p.insert(event{curve: curveExp, t: t, v: v})
}

// CancelScheduledValues removes every event at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.cancelFrom(t)
}

// CancelAndHold freezes the value the timeline has at t and removes later events.
func (p *Param) CancelAndHold(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	v := p.intrinsic(t)
	p.cancelFrom(t)
	p.insert(event{curve: curveSet, t: t, v: v})
}

// ValueAt returns the automated value at t, excluding modulation.
func (p *Param) ValueAt(t float64) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.clamp(p.intrinsic(t))
}

// Value returns the automated value at the context's current time.
func (p *Param) Value() float64 {
	return p.ValueAt(p.ctx.CurrentTime())
}

// Events returns the number of pending automation events.
func (p *Param) Events() int {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return len(p.events)
}

// compute is called from the render path with ctx.mu held.
func (p *Param) compute(frame int64, t float64) float64 {
	v := p.intrinsic(t)
	for _, m := range p.mods {
		l, _ := m.pull(frame, t)
		v += l
	}
	return p.clamp(v)
}

func (p *Param) clamp(v float64) float64 {
	if p.max > p.min {
		return clampF(v, p.min, p.max)
	}
	return v
}

func (p *Param) intrinsic(t float64) float64 {
	n := len(p.events)
	if n == 0 {
		return p.value
	}
	i := sort.Search(n, func(i int) bool { return p.events[i].t > t })
	if i == n {
		return p.events[n-1].v
	}
	if i == 0 {
		return p.value
	}
	prev, next := p.events[i-1], p.events[i]
	span := next.t - prev.t
	if span <= 0 {
		return next.v
	}
	frac := (t - prev.t) / span
	switch next.curve {
	case curveLinear:
		return prev.v + (next.v-prev.v)*frac
	case curveExp:
		if prev.v <= 0 || next.v <= 0 {
			return prev.v
		}
		return prev.v * math.Pow(next.v/prev.v, frac)
	}
	return prev.v
}

// anchor pins the current value as the start of a ramp when nothing precedes it.
func (p *Param) anchor() {
	now := p.ctx.CurrentTime()
	if len(p.events) == 0 || p.events[0].t > now {
		p.insert(event{curve: curveSet, t: now, v: p.intrinsic(now)})
	}
}

func (p *Param) insert(e event) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].t > e.t })
	p.events = append(p.events, event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) cancelFrom(t float64) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].t >= t })
	if i == 0 && len(p.events) > 0 {
		p.value = p.intrinsic(t)
	}
	p.events = p.events[:i]
}

// compact drops events that can no longer influence the timeline: everything
// before the last event at or before now.
func (p *Param) compact() {
	now := p.ctx.CurrentTime()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].t > now })
	if i <= 1 {
		return
	}
	p.events = append(p.events[:0], p.events[i-1:]...)
}
