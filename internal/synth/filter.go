package synth

import "math"

// FilterType selects the biquad response.
type FilterType uint8

const (
	Lowpass FilterType = iota
	Bandpass
	Highpass
)

// Filter is a stereo RBJ biquad whose coefficients follow its Frequency and Q params.
type Filter struct {
	node
	Type      FilterType
	Frequency *Param
	Q         *Param

	lastF, lastQ       float64
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [2]float64
}

// NewFilter creates a filter with cutoff/centre freq Hz and resonance q.
func (c *Context) NewFilter(typ FilterType, freq, q float64) *Filter {
	f := &Filter{Type: typ}
	f.node.init(c, f)
	f.Frequency = newParam(c, freq, 10, c.sampleRate/2-1)
	f.Q = newParam(c, q, 1e-4, 1000)
	return f
}

func (f *Filter) process(frame int64, t, inL, inR float64) (float64, float64) {
	freq := f.Frequency.compute(frame, t)
	q := f.Q.compute(frame, t)
	if freq != f.lastF || q != f.lastQ {
		f.coefficients(freq, q)
	}
	return f.step(0, inL), f.step(1, inR)
}

func (f *Filter) step(ch int, x float64) float64 {
	y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
	f.x2[ch], f.x1[ch] = f.x1[ch], x
	f.y2[ch], f.y1[ch] = f.y1[ch], y
	return y
}

func (f *Filter) coefficients(freq, q float64) {
	f.lastF, f.lastQ = freq, q
	w0 := 2 * math.Pi * freq / f.ctx.sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)

	var b0, b1, b2 float64
	switch f.Type {
	case Bandpass:
		b0, b1, b2 = alpha, 0, -alpha
	case Highpass:
		b0, b1, b2 = (1+cosw)/2, -(1 + cosw), (1+cosw)/2
	default:
		b0, b1, b2 = (1-cosw)/2, 1-cosw, (1-cosw)/2
	}
	a0 := 1 + alpha
	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1, f.a2 = -2*cosw/a0, (1-alpha)/a0
}

// Gain scales its summed input.
type Gain struct {
	node
	Gain *Param
}

// NewGain creates a gain stage that starts silent.
func (c *Context) NewGain() *Gain {
	g := &Gain{}
	g.node.init(c, g)
	g.Gain = newParam(c, 0, 0, 0)
	return g
}

func (g *Gain) process(frame int64, t, inL, inR float64) (float64, float64) {
	v := g.Gain.compute(frame, t)
	return inL * v, inR * v
}
