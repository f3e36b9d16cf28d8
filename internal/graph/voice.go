package graph

import (
	"errors"
	"math"

	"weathersound/internal/synth"
)

// voice is the node set a builder produced. out is the voice's own gain
// stage; the manager connects it to the destination once the build succeeds.
type voice struct {
	out     *synth.Gain
	nodes   []synth.Node
	sources []synth.Source
}

func (v *voice) add(nodes ...synth.Node) {
	v.nodes = append(v.nodes, nodes...)
}

func (v *voice) source(s synth.Source) {
	v.sources = append(v.sources, s)
	v.nodes = append(v.nodes, s)
}

// chain connects each node to the next.
func chain(nodes ...synth.Node) error {
	var errs []error
	for i := 0; i+1 < len(nodes); i++ {
		errs = append(errs, nodes[i].Connect(nodes[i+1]))
	}
	return errors.Join(errs...)
}

func (v *voice) start(at float64) error {
	var errs []error
	for _, s := range v.sources {
		errs = append(errs, s.Start(at))
	}
	return errors.Join(errs...)
}

// stop schedules every source to stop at t. Already-stopped sources are fine.
func (v *voice) stop(t float64) {
	for _, s := range v.sources {
		_ = s.Stop(t)
	}
}

func (v *voice) disconnect() {
	for _, n := range v.nodes {
		n.Disconnect()
	}
}

func noiseLoop(ctx *synth.Context, seed uint64, seconds float64, channels int) (*synth.BufferSource, error) {
	buf, err := synth.NewNoiseBuffer(ctx.SampleRate(), seconds, channels, seed)
	if err != nil {
		return nil, err
	}
	return ctx.NewBufferSource(buf, true)
}

// buildRain: looping stereo noise through a bandpass and a lowpass, both
// opening up with intensity.
func buildRain(ctx *synth.Context, rnd *synth.Rand, intensity float64) (*voice, error) {
	noise, err := noiseLoop(ctx, rnd.NextU64(), 2, 2)
	if err != nil {
		return nil, err
	}
	bp := ctx.NewFilter(synth.Bandpass, 1000+2000*intensity, 0.5)
	lp := ctx.NewFilter(synth.Lowpass, 3000+2000*intensity, 1)
	v := &voice{out: ctx.NewGain()}
	v.source(noise)
	v.add(bp, lp, v.out)
	if err := chain(noise, bp, lp, v.out); err != nil {
		return nil, err
	}
	return v, nil
}

// buildWind: looping stereo noise through a 400 Hz bandpass whose centre is
// swept by a slow sine LFO.
func buildWind(ctx *synth.Context, rnd *synth.Rand, _ float64) (*voice, error) {
	noise, err := noiseLoop(ctx, rnd.NextU64(), 2, 2)
	if err != nil {
		return nil, err
	}
	bp := ctx.NewFilter(synth.Bandpass, 400, 1)
	lfo := ctx.NewOscillator(synth.Sine, 0.1)
	depth := ctx.NewGain()
	depth.Gain.SetValue(200)

	v := &voice{out: ctx.NewGain()}
	v.source(noise)
	v.source(lfo)
	v.add(bp, depth, v.out)
	err = errors.Join(
		chain(noise, bp, v.out),
		chain(lfo, depth),
		depth.ConnectParam(bp.Frequency),
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

const thunderDuration = 3.0

// buildThunder: a falling sawtooth rumble plus a noise burst, low-passed,
// with a fast attack and a long exponential tail. peak scales the envelope.
func buildThunder(ctx *synth.Context, rnd *synth.Rand, peak float64) (*voice, float64, error) {
	now := ctx.CurrentTime()
	end := now + thunderDuration

	buf, err := synth.NewNoiseBuffer(ctx.SampleRate(), thunderDuration, 1, rnd.NextU64())
	if err != nil {
		return nil, 0, err
	}
	burst, err := ctx.NewBufferSource(buf, false)
	if err != nil {
		return nil, 0, err
	}
	rumble := ctx.NewOscillator(synth.Sawtooth, 50)
	rumble.Frequency.SetValueAtTime(50, now)
	rumble.Frequency.ExponentialRampToValueAtTime(30, end)

	lp := ctx.NewFilter(synth.Lowpass, 150, 1)
	v := &voice{out: ctx.NewGain()}
	v.out.Gain.SetValueAtTime(0, now)
	v.out.Gain.LinearRampToValueAtTime(0.8*peak, now+0.05)
	v.out.Gain.ExponentialRampToValueAtTime(0.01*peak, end)

	v.source(rumble)
	v.source(burst)
	v.add(lp, v.out)
	if err := errors.Join(chain(rumble, lp, v.out), burst.Connect(lp)); err != nil {
		return nil, 0, err
	}
	if err := v.start(now); err != nil {
		return nil, 0, err
	}
	v.stop(end)
	return v, thunderDuration, nil
}

const chirpDuration = 0.4

// buildBirdsong: a phrase of 2 to 4 short chirps. Each chirp is a swept sine
// and its fifth, softly low-passed, all scheduled ahead on the timeline.
func buildBirdsong(ctx *synth.Context, rnd *synth.Rand, peak float64) (*voice, float64, error) {
	now := ctx.CurrentTime()
	notes := rnd.Range(2, 4)
	v := &voice{out: ctx.NewGain()}
	v.out.Gain.SetValue(1)
	v.add(v.out)

	var last float64
	for i := 0; i < notes; i++ {
		offset := float64(i) * rnd.RangeF(0.08, 0.14)
		last = math.Max(last, offset)
		if err := addChirp(ctx, v, rnd.RangeF(1200, 2000), peak, now+offset); err != nil {
			return nil, 0, err
		}
	}
	return v, last + chirpDuration, nil
}

func addChirp(ctx *synth.Context, v *voice, base, peak, at float64) error {
	osc1 := ctx.NewOscillator(synth.Sine, base)
	osc2 := ctx.NewOscillator(synth.Sine, base*1.5)
	osc1.Frequency.SetValueAtTime(base, at)
	osc1.Frequency.ExponentialRampToValueAtTime(base*1.3, at+0.1)
	osc1.Frequency.ExponentialRampToValueAtTime(base*0.9, at+0.2)

	lp := ctx.NewFilter(synth.Lowpass, 3000, 1)
	env := ctx.NewGain()
	env.Gain.SetValueAtTime(0, at)
	env.Gain.LinearRampToValueAtTime(0.03*peak, at+0.05)
	env.Gain.LinearRampToValueAtTime(0.02*peak, at+0.15)
	env.Gain.ExponentialRampToValueAtTime(0.001*peak, at+0.35)

	v.source(osc1)
	v.source(osc2)
	v.add(lp, env)
	err := errors.Join(
		chain(osc1, lp, env, v.out),
		osc2.Connect(lp),
		osc1.Start(at),
		osc2.Start(at),
	)
	if err != nil {
		return err
	}
	_ = osc1.Stop(at + chirpDuration)
	_ = osc2.Stop(at + chirpDuration)
	return nil
}
