// Package graph owns the live sound instances: it builds voice graphs from
// recipe entries, fades them in and out against the device timeline, and
// runs self-terminating one-shots. Every method must be called from the
// schedule.Loop goroutine; teardown timers are posted back to that loop.
package graph

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"weathersound/internal/device"
	"weathersound/internal/observability"
	"weathersound/internal/recipe"
	"weathersound/internal/schedule"
	"weathersound/internal/synth"
)

const (
	DefaultFadeOut = 500 * time.Millisecond
	VolumeRamp     = 300 * time.Millisecond

	// teardownSlack is added after a fade before nodes are disconnected.
	teardownSlack = 100 * time.Millisecond
)

type continuousBuilder func(*synth.Context, *synth.Rand, float64) (*voice, error)
type oneShotBuilder func(*synth.Context, *synth.Rand, float64) (*voice, float64, error)

var continuousBuilders = map[recipe.Voice]continuousBuilder{
	recipe.Rain: buildRain,
	recipe.Wind: buildWind,
}

var oneShotBuilders = map[recipe.Voice]oneShotBuilder{
	recipe.Thunder:  buildThunder,
	recipe.Birdsong: buildBirdsong,
}

// Instance is one named, continuously playing voice.
type Instance struct {
	Name  string
	Entry recipe.Entry

	v       *voice
	fadeEnd float64 // timeline point where the fade-in completes
}

// Gain is the instance's output gain.
func (i *Instance) Gain() *synth.Param { return i.v.out.Gain }

type oneShot struct {
	voice recipe.Voice
	v     *voice
}

// Options configures a Manager.
type Options struct {
	// Open creates the device on first use. Nil opens a null device on the
	// loop's clock.
	Open    func() device.Device
	Loop    *schedule.Loop
	Rand    *synth.Rand
	Logger  *slog.Logger
	Metrics *observability.Metrics
	FadeOut time.Duration
	Volume  float64
}

// Manager is the instance table plus the in-flight one-shot table.
type Manager struct {
	open    func() device.Device
	dev     device.Device
	loop    *schedule.Loop
	rnd     *synth.Rand
	logger  *slog.Logger
	metrics *observability.Metrics
	fadeOut time.Duration
	volume  float64

	instances map[string]*Instance
	fading    map[*Instance]struct{}
	oneShots  map[uuid.UUID]*oneShot
}

func New(opts Options) *Manager {
	m := &Manager{
		open:      opts.Open,
		loop:      opts.Loop,
		rnd:       opts.Rand,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		fadeOut:   opts.FadeOut,
		volume:    synth.Clamp01(opts.Volume),
		instances: make(map[string]*Instance),
		fading:    make(map[*Instance]struct{}),
		oneShots:  make(map[uuid.UUID]*oneShot),
	}
	if m.open == nil {
		clock := opts.Loop.Clock()
		m.open = func() device.Device { return device.NewNull(clock, false) }
	}
	if m.rnd == nil {
		m.rnd = synth.NewRand(uint64(time.Now().UnixNano()))
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.metrics == nil {
		m.metrics = observability.NewMetricsForTesting()
	}
	if m.fadeOut <= 0 {
		m.fadeOut = DefaultFadeOut
	}
	m.metrics.Volume.Set(m.volume)
	return m
}

// EnsureDeviceReady opens the device on first use and resumes it if it is
// suspended. Resume failures are logged; the returned device is always usable.
func (m *Manager) EnsureDeviceReady() device.Device {
	if m.dev == nil {
		m.dev = m.open()
	}
	if m.dev.State() == device.Suspended {
		if err := m.dev.Resume(); err != nil {
			m.logger.Debug("audio resume failed", "error", err)
		}
	}
	return m.dev
}

// Device returns the device if it has been opened.
func (m *Manager) Device() device.Device { return m.dev }

// StartInstance builds entry's voice, registers it under name and fades it
// in to entry.TargetGain scaled by the master volume. An existing instance
// with the same name is stopped first. Build failures are logged and the
// instance is skipped.
func (m *Manager) StartInstance(name string, entry recipe.Entry) {
	ctx := m.EnsureDeviceReady().Context()
	if _, ok := m.instances[name]; ok {
		m.StopInstance(name)
	}

	build, ok := continuousBuilders[entry.Voice]
	if !ok {
		m.buildFailed(entry.Voice, recipe.ErrUnknownVoice)
		return
	}
	v, err := build(ctx, m.rnd, entry.Intensity)
	if err == nil {
		err = v.out.Connect(ctx.Destination())
	}
	if err != nil {
		m.buildFailed(entry.Voice, err)
		return
	}

	now := ctx.CurrentTime()
	inst := &Instance{Name: name, Entry: entry, v: v, fadeEnd: now + entry.FadeIn.Seconds()}
	g := v.out.Gain
	g.SetValueAtTime(0, now)
	g.LinearRampToValueAtTime(entry.TargetGain*m.volume, inst.fadeEnd)
	if err := v.start(now); err != nil {
		v.disconnect()
		m.buildFailed(entry.Voice, err)
		return
	}

	m.instances[name] = inst
	m.updateGauges()
	m.logger.Debug("sound instance started", "name", name, "voice", entry.Voice, "gain", entry.TargetGain)
}

// StopInstance removes name from the table at once and fades it to silence;
// its nodes are torn down after the fade. Stopping an unknown name is a no-op.
func (m *Manager) StopInstance(name string) {
	inst, ok := m.instances[name]
	if !ok {
		return
	}
	delete(m.instances, name)

	ctx := m.dev.Context()
	now := ctx.CurrentTime()
	g := inst.v.out.Gain
	g.CancelAndHold(now)
	g.LinearRampToValueAtTime(0, now+m.fadeOut.Seconds())
	inst.v.stop(now + (m.fadeOut + teardownSlack).Seconds())

	m.fading[inst] = struct{}{}
	m.loop.Schedule(m.fadeOut+teardownSlack, func() {
		inst.v.disconnect()
		delete(m.fading, inst)
		m.updateGauges()
	})
	m.updateGauges()
	m.logger.Debug("sound instance stopping", "name", name)
}

// StopAll stops every registered instance.
func (m *Manager) StopAll() {
	for _, name := range m.Active() {
		m.StopInstance(name)
	}
}

// SpawnOneShot plays a self-terminating voice. It is not registered by name
// and cannot be stopped early; its nodes are released once it has finished.
func (m *Manager) SpawnOneShot(shot recipe.OneShot) {
	ctx := m.EnsureDeviceReady().Context()
	build, ok := oneShotBuilders[shot.Voice]
	if !ok {
		m.buildFailed(shot.Voice, recipe.ErrUnknownVoice)
		return
	}
	scale := shot.Gain
	if scale <= 0 {
		scale = 1
	}
	v, dur, err := build(ctx, m.rnd, scale*m.volume)
	if err == nil {
		err = v.out.Connect(ctx.Destination())
	}
	if err != nil {
		m.buildFailed(shot.Voice, err)
		return
	}

	id := uuid.New()
	m.oneShots[id] = &oneShot{voice: shot.Voice, v: v}
	m.loop.Schedule(time.Duration(dur*float64(time.Second))+teardownSlack, func() {
		v.disconnect()
		delete(m.oneShots, id)
	})
	m.metrics.OneShots.WithLabelValues(string(shot.Voice)).Inc()
	m.logger.Debug("one-shot spawned", "id", id, "voice", shot.Voice)
}

// SetMasterVolume ramps every active instance toward its target gain at the
// new volume and keeps the volume for later instances. An instance still
// fading in keeps its original fade end.
func (m *Manager) SetMasterVolume(value float64) {
	m.volume = synth.Clamp01(value)
	m.metrics.Volume.Set(m.volume)
	if m.dev == nil {
		return
	}
	now := m.dev.Context().CurrentTime()
	end := now + VolumeRamp.Seconds()
	for _, inst := range m.instances {
		g := inst.v.out.Gain
		g.CancelAndHold(now)
		g.LinearRampToValueAtTime(inst.Entry.TargetGain*m.volume, max(end, inst.fadeEnd))
	}
}

func (m *Manager) Volume() float64 { return m.volume }

// Active returns the registered instance names in order.
func (m *Manager) Active() []string {
	names := make([]string, 0, len(m.instances))
	for name := range m.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instance returns the registered instance for name, or nil.
func (m *Manager) Instance(name string) *Instance { return m.instances[name] }

// Fading counts stopped instances whose nodes have not been torn down yet.
func (m *Manager) Fading() int { return len(m.fading) }

// OneShots counts one-shots still holding nodes.
func (m *Manager) OneShots() int { return len(m.oneShots) }

func (m *Manager) buildFailed(v recipe.Voice, err error) {
	m.metrics.BuildFailures.WithLabelValues(string(v)).Inc()
	m.logger.Warn("sound build failed (skipping)", "voice", v, "error", err)
}

func (m *Manager) updateGauges() {
	m.metrics.ActiveInstances.Set(float64(len(m.instances)))
	m.metrics.FadingInstances.Set(float64(len(m.fading)))
}
