// Package soundscape is the orchestrator: it turns weather updates and user
// controls into graph instances and armed one-shot schedules.
//
// Public methods post to the schedule.Loop and return immediately, so they
// are safe from any goroutine. State reads a snapshot published by the loop.
package soundscape

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"weathersound/internal/graph"
	"weathersound/internal/observability"
	"weathersound/internal/recipe"
	"weathersound/internal/schedule"
	"weathersound/internal/synth"
	"weathersound/internal/weather"
)

// DefaultSettleDelay separates the fade-out of one scene from the start of the next.
const DefaultSettleDelay = 300 * time.Millisecond

// Scene is the active soundscape: a weather category or one of the sentinels.
type Scene string

const (
	SceneNone       Scene = "none"
	SceneClearNight Scene = "clear-night"
)

// State is what the UI layer sees.
type State struct {
	Enabled bool    `json:"enabled"`
	Volume  float64 `json:"volume"`
	Scene   Scene   `json:"scene"`
}

// Options configures a Manager.
type Options struct {
	Loop        *schedule.Loop
	Graph       *graph.Manager
	Library     *recipe.Library
	Rand        schedule.Source
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	SettleDelay time.Duration

	// Enabled and Volume are taken as given: the zero Options is a muted,
	// disabled engine. Services pass config.Load's defaults (enabled, 0.5).
	Enabled bool
	Volume  float64
}

type Manager struct {
	loop    *schedule.Loop
	graph   *graph.Manager
	lib     *recipe.Library
	rnd     schedule.Source
	logger  *slog.Logger
	metrics *observability.Metrics
	settle  time.Duration

	// Loop-owned.
	scene    Scene
	category weather.Category
	wind     float64
	enabled  bool
	volume   float64
	closed   bool
	gen      uint64
	pending  schedule.Handle
	events   map[string]*schedule.Repeater

	mu   sync.Mutex
	snap State
}

// New creates a manager. It must be called before the loop starts running.
func New(opts Options) *Manager {
	m := &Manager{
		loop:    opts.Loop,
		graph:   opts.Graph,
		lib:     opts.Library,
		rnd:     opts.Rand,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		settle:  opts.SettleDelay,
		scene:   SceneNone,
		enabled: opts.Enabled,
		volume:  synth.Clamp01(opts.Volume),
		events:  make(map[string]*schedule.Repeater),
	}
	if m.lib == nil {
		m.lib = recipe.Default()
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
	if m.settle <= 0 {
		m.settle = DefaultSettleDelay
	}
	m.graph.SetMasterVolume(m.volume)
	m.publish()
	return m
}

// OnWeatherChange switches the soundscape to c. A repeat of the current
// scene is a no-op. The latest update always wins: a transition still
// waiting out its settle delay is discarded.
func (m *Manager) OnWeatherChange(c weather.Conditions) {
	m.loop.Post(func() { m.weatherChanged(c) })
}

// ToggleEnabled flips sound on or off.
func (m *Manager) ToggleEnabled() {
	m.loop.Post(m.toggle)
}

// SetVolume clamps v to [0,1] and ramps every playing instance toward it.
func (m *Manager) SetVolume(v float64) {
	m.loop.Post(func() { m.setVolume(v) })
}

// ResumeOnUserGesture opens and resumes the audio device. Call it from the
// first user interaction; repeated calls are harmless.
func (m *Manager) ResumeOnUserGesture() {
	m.loop.Post(func() {
		if !m.closed {
			m.graph.EnsureDeviceReady()
		}
	})
}

// Close silences everything and cancels every event timer. Later calls on
// the manager are ignored.
func (m *Manager) Close() {
	m.loop.Post(func() {
		m.silence()
		m.closed = true
		m.logger.Info("soundscape closed")
	})
}

// State returns the last published state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Sync waits until everything posted before it has run on the loop.
func (m *Manager) Sync(ctx context.Context) error {
	done := make(chan struct{})
	m.loop.Post(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// The accessors below must be called on the loop goroutine.

// Scene returns the active scene.
func (m *Manager) Scene() Scene { return m.scene }

// ArmedEvents returns the names of armed event schedules.
func (m *Manager) ArmedEvents() []string {
	names := make([]string, 0, len(m.events))
	for name, r := range m.events {
		if r.Armed() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// PendingEventTimers counts outstanding event timers across all schedules.
func (m *Manager) PendingEventTimers() int {
	n := 0
	for _, r := range m.events {
		n += r.Pending()
	}
	return n
}

// Event returns the schedule registered under name, or nil.
func (m *Manager) Event(name string) *schedule.Repeater { return m.events[name] }

// Transitioning reports whether a transition is waiting out its settle delay.
func (m *Manager) Transitioning() bool { return m.pending != 0 }

func (m *Manager) weatherChanged(c weather.Conditions) {
	if m.closed {
		return
	}
	cat := c.Category()
	scene := Scene(cat)
	if cat == weather.Clear && c.IsNight {
		scene = SceneClearNight
	}
	if scene == m.scene {
		return
	}
	m.logger.Info("weather scene changed", "from", m.scene, "to", scene, "code", c.Code, "wind", c.WindSpeed)
	m.scene = scene
	m.category = cat
	m.wind = c.WindSpeed
	m.metrics.Transitions.WithLabelValues(string(scene)).Inc()

	if m.enabled {
		m.transition()
	}
	m.publish()
}

// transition disarms, stops, then starts the active scene after the settle
// delay. The continuation is dropped if another transition or a disable has
// happened in the meantime.
func (m *Manager) transition() {
	m.silence()
	if m.scene == SceneNone || m.scene == SceneClearNight {
		return
	}
	gen := m.gen
	m.pending = m.loop.Schedule(m.settle, func() {
		m.pending = 0
		if gen != m.gen || !m.enabled || m.closed {
			return
		}
		m.play()
	})
}

// silence invalidates any in-flight transition, disarms every schedule and
// stops every instance, in that order.
func (m *Manager) silence() {
	m.gen++
	if m.pending != 0 {
		m.loop.Cancel(m.pending)
		m.pending = 0
	}
	for name, r := range m.events {
		r.Disarm()
		delete(m.events, name)
	}
	m.metrics.ArmedEvents.Set(0)
	m.graph.StopAll()
}

func (m *Manager) play() {
	r := m.lib.Resolve(m.category, m.wind)
	for _, e := range r.Entries {
		m.graph.StartInstance(e.Name, e)
	}
	for _, ev := range r.Events {
		m.arm(ev)
	}
	m.logger.Debug("scene playing", "scene", m.scene, "instances", len(r.Entries), "events", len(r.Events))
}

func (m *Manager) arm(ev recipe.Event) {
	if old, ok := m.events[ev.Name]; ok {
		old.Disarm()
	}
	voice := ev.Voice
	rep := schedule.NewRepeater(m.loop, m.rnd, repeaterConfig(ev), func(scale float64) {
		m.graph.SpawnOneShot(recipe.OneShot{Voice: voice, Gain: scale})
	})
	m.events[ev.Name] = rep
	rep.Arm()
	m.metrics.ArmedEvents.Set(float64(len(m.events)))
}

func repeaterConfig(ev recipe.Event) schedule.Config {
	cfg := schedule.Config{
		Name:         ev.Name,
		InitialDelay: ev.InitialDelay,
		FireFirst:    ev.FireFirst,
		MinInterval:  ev.MinInterval,
		MaxInterval:  ev.MaxInterval,
		Probability:  ev.Probability,
	}
	if s := ev.Secondary; s != nil {
		cfg.Secondary = &schedule.Secondary{
			Probability: s.Probability,
			MinDelay:    s.MinDelay,
			MaxDelay:    s.MaxDelay,
			GainScale:   s.GainScale,
		}
	}
	return cfg
}

func (m *Manager) toggle() {
	if m.closed {
		return
	}
	m.enabled = !m.enabled
	if m.enabled {
		m.graph.EnsureDeviceReady()
		m.transition()
	} else {
		m.silence()
	}
	m.logger.Info("sound toggled", "enabled", m.enabled, "scene", m.scene)
	m.publish()
}

func (m *Manager) setVolume(v float64) {
	if m.closed {
		return
	}
	m.volume = synth.Clamp01(v)
	m.graph.SetMasterVolume(m.volume)
	m.publish()
}

func (m *Manager) publish() {
	if m.enabled {
		m.metrics.Enabled.Set(1)
	} else {
		m.metrics.Enabled.Set(0)
	}
	m.mu.Lock()
	m.snap = State{Enabled: m.enabled, Volume: m.volume, Scene: m.scene}
	m.mu.Unlock()
}
