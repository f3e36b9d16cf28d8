// Package synth is a small pull-based audio graph: noise buffers,
// oscillators, biquad filters and gain stages connected into a master
// destination and rendered as float32 LE stereo frames.
//
// All parameter automation is expressed against the context timeline
// (CurrentTime, in seconds). A frame-clocked context advances only while the
// output device pulls samples; a wall-clocked context follows a
// clockwork.Clock and is what the silent device and the tests use.
package synth

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	SampleRate   = 44100
	ChannelCount = 2

	// BytesPerFrame is one stereo float32 frame.
	BytesPerFrame = 8
)

var (
	ErrAlreadyStarted = errors.New("synth: source already started")
	ErrNotStarted     = errors.New("synth: source not started")
	ErrInvalidBuffer  = errors.New("synth: invalid buffer")
	ErrForeignNode    = errors.New("synth: node belongs to another context")
)

// Context owns one audio graph and its timeline.
type Context struct {
	sampleRate float64

	wall  clockwork.Clock
	epoch time.Time

	// mu guards graph topology, automation timelines and render state.
	mu    sync.Mutex
	frame atomic.Int64
	dest  *Gain
}

// Option configures a Context.
type Option func(*Context)

// WithWallClock drives the timeline from c instead of rendered frames.
func WithWallClock(c clockwork.Clock) Option {
	return func(ctx *Context) {
		ctx.wall = c
	}
}

// WithSampleRate overrides SampleRate.
func WithSampleRate(rate int) Option {
	return func(ctx *Context) {
		if rate > 0 {
			ctx.sampleRate = float64(rate)
		}
	}
}

// NewContext creates an empty graph whose destination passes audio at unity gain.
func NewContext(opts ...Option) *Context {
	c := &Context{sampleRate: SampleRate}
	for _, opt := range opts {
		opt(c)
	}
	if c.wall != nil {
		c.epoch = c.wall.Now()
	}
	c.dest = c.NewGain()
	c.dest.Gain.value = 1
	return c
}

// SampleRate returns the render rate in Hz.
func (c *Context) SampleRate() float64 { return c.sampleRate }

// CurrentTime returns the timeline position in seconds.
func (c *Context) CurrentTime() float64 {
	if c.wall != nil {
		return c.wall.Since(c.epoch).Seconds()
	}
	return float64(c.frame.Load()) / c.sampleRate
}

// Destination is the final mix stage.
func (c *Context) Destination() *Gain { return c.dest }

// Read renders len(p)/8 stereo frames. It implements io.Reader for oto players
// and never returns an error: a silent graph renders zeros.
func (c *Context) Read(p []byte) (int, error) {
	frames := len(p) / BytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.CurrentTime()
	for i := 0; i < frames; i++ {
		f := c.frame.Add(1)
		t := base + float64(i)/c.sampleRate
		l, r := c.dest.pull(f, t)
		putFrame(p, i, softSat(l), softSat(r))
	}
	return frames * BytesPerFrame, nil
}
