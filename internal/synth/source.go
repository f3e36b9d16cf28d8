package synth

import "math"

// Buffer holds planar float32 sample data.
type Buffer struct {
	channels [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(channels, frames int) (*Buffer, error) {
	if channels <= 0 || channels > ChannelCount || frames <= 0 {
		return nil, ErrInvalidBuffer
	}
	b := &Buffer{channels: make([][]float32, channels)}
	for ch := range b.channels {
		b.channels[ch] = make([]float32, frames)
	}
	return b, nil
}

// NewNoiseBuffer fills seconds of white noise per channel.
// Each channel draws from its own stream so stereo noise decorrelates.
func NewNoiseBuffer(sampleRate, seconds float64, channels int, seed uint64) (*Buffer, error) {
	b, err := NewBuffer(channels, int(seconds*sampleRate))
	if err != nil {
		return nil, err
	}
	for ch, data := range b.channels {
		s := splitmix64(seed + uint64(ch)*0x9E3779B185EBCA87)
		for i := range data {
			data[i] = float32(lcg(&s))
		}
	}
	return b, nil
}

// Channel returns channel ch's samples.
func (b *Buffer) Channel(ch int) []float32 { return b.channels[ch] }

// Channels returns the channel count.
func (b *Buffer) Channels() int { return len(b.channels) }

// Len returns the frame count.
func (b *Buffer) Len() int { return len(b.channels[0]) }

// schedule tracks a source's start/stop window on the timeline.
type schedule struct {
	sctx    *Context
	started bool
	start   float64
	stop    float64
}

func (s *schedule) bind(ctx *Context) {
	s.sctx = ctx
	s.stop = math.Inf(1)
}

// Start begins output at t (or now, if t is in the past). A source starts once.
func (s *schedule) Start(t float64) error {
	s.sctx.mu.Lock()
	defer s.sctx.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if now := s.sctx.CurrentTime(); t < now {
		t = now
	}
	s.started = true
	s.start = t
	return nil
}

// Stop ends output at t. Calling it again moves the stop time.
func (s *schedule) Stop(t float64) error {
	s.sctx.mu.Lock()
	defer s.sctx.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if t < s.start {
		t = s.start
	}
	s.stop = t
	return nil
}

// Ended reports whether the source has passed its stop time.
func (s *schedule) Ended() bool {
	s.sctx.mu.Lock()
	defer s.sctx.mu.Unlock()
	return s.started && s.sctx.CurrentTime() >= s.stop
}

func (s *schedule) active(t float64) bool {
	return s.started && t >= s.start && t < s.stop
}

// Source is a node that produces sound on its own once started.
type Source interface {
	Node
	Start(t float64) error
	Stop(t float64) error
	Ended() bool
}

// BufferSource plays a Buffer once, or forever when Loop is set.
type BufferSource struct {
	node
	schedule
	buf  *Buffer
	loop bool
	pos  int
	done bool
}

// NewBufferSource creates an inert player for buf.
func (c *Context) NewBufferSource(buf *Buffer, loop bool) (*BufferSource, error) {
	if buf == nil || len(buf.channels) == 0 || buf.Len() == 0 {
		return nil, ErrInvalidBuffer
	}
	s := &BufferSource{buf: buf, loop: loop}
	s.node.init(c, s)
	s.schedule.bind(c)
	return s, nil
}

func (s *BufferSource) process(_ int64, t, _, _ float64) (float64, float64) {
	if s.done || !s.active(t) {
		return 0, 0
	}
	l := float64(s.buf.channels[0][s.pos])
	r := l
	if len(s.buf.channels) > 1 {
		r = float64(s.buf.channels[1][s.pos])
	}
	s.pos++
	if s.pos >= s.buf.Len() {
		if s.loop {
			s.pos = 0
		} else {
			s.done = true
		}
	}
	return l, r
}

// Waveform selects an oscillator shape.
type Waveform uint8

const (
	Sine Waveform = iota
	Triangle
	Sawtooth
	Square
)

// Oscillator is a periodic mono source.
type Oscillator struct {
	node
	schedule
	Wave      Waveform
	Frequency *Param
	phase     float64 // cycles, [0,1)
}

// NewOscillator creates an inert oscillator at freq Hz.
func (c *Context) NewOscillator(wave Waveform, freq float64) *Oscillator {
	o := &Oscillator{Wave: wave}
	o.node.init(c, o)
	o.schedule.bind(c)
	o.Frequency = newParam(c, freq, 0, c.sampleRate/2)
	return o
}

func (o *Oscillator) process(frame int64, t, _, _ float64) (float64, float64) {
	if !o.active(t) {
		return 0, 0
	}
	f := o.Frequency.compute(frame, t)
	var s float64
	switch o.Wave {
	case Triangle:
		s = triWave(2 * math.Pi * o.phase)
	case Sawtooth:
		s = 2*o.phase - 1
	case Square:
		if o.phase < 0.5 {
			s = 1
		} else {
			s = -1
		}
	default:
		s = math.Sin(2 * math.Pi * o.phase)
	}
	o.phase += f / o.ctx.sampleRate
	o.phase -= math.Floor(o.phase)
	return s, s
}
