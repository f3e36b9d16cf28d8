// Package recipe holds the per-category soundscape tuning: which continuous
// voices play at what intensity, and which randomized one-shot events are
// armed. It is pure data; graph wiring lives in package graph.
package recipe

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"weathersound/internal/weather"
)

//go:embed recipes.yaml
var defaultRecipes []byte

var (
	ErrUnknownVoice    = errors.New("recipe: unknown voice")
	ErrUnknownCategory = errors.New("recipe: unknown category")
	ErrInvalid         = errors.New("recipe: invalid value")
)

// Voice selects a graph builder.
type Voice string

const (
	Rain     Voice = "rain"
	Wind     Voice = "wind"
	Thunder  Voice = "thunder"
	Birdsong Voice = "birdsong"
)

// Continuous reports whether v is a looping ambient voice (as opposed to a
// self-terminating one-shot).
func (v Voice) Continuous() bool { return v == Rain || v == Wind }

func (v Voice) valid() bool {
	switch v {
	case Rain, Wind, Thunder, Birdsong:
		return true
	}
	return false
}

// Entry is one named continuous instance of a recipe.
type Entry struct {
	Name      string  `yaml:"name"`
	Voice     Voice   `yaml:"voice"`
	Intensity float64 `yaml:"intensity"`

	// Filled in by Resolve from the voice defaults.
	TargetGain float64       `yaml:"-"`
	FadeIn     time.Duration `yaml:"-"`
}

// Secondary is a follow-up strike shortly after a successful event tick.
type Secondary struct {
	Probability float64       `yaml:"probability"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	GainScale   float64       `yaml:"gain_scale"`
}

// Event is a randomized one-shot schedule.
type Event struct {
	Name         string        `yaml:"name"`
	Voice        Voice         `yaml:"voice"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	FireFirst    bool          `yaml:"fire_first"`
	MinInterval  time.Duration `yaml:"min_interval"`
	MaxInterval  time.Duration `yaml:"max_interval"`
	Probability  float64       `yaml:"probability"`
	Secondary    *Secondary    `yaml:"secondary"`
}

// OneShot is a single self-terminating sound request.
type OneShot struct {
	Voice Voice
	// Gain scales the voice's own envelope; 1 is a normal strike.
	Gain float64
}

// WindGate adds a wind entry when the wind is strong enough.
type WindGate struct {
	Threshold float64 `yaml:"threshold"`
	Divisor   float64 `yaml:"divisor"`
	Max       float64 `yaml:"max"`
}

// VoiceDefaults are the per-voice gain and fade-in.
type VoiceDefaults struct {
	Gain   float64       `yaml:"gain"`
	FadeIn time.Duration `yaml:"fade_in"`
}

// Recipe is the resolved soundscape for one category.
type Recipe struct {
	Category weather.Category
	Entries  []Entry
	Events   []Event
}

// Empty reports whether the recipe makes no sound at all.
func (r Recipe) Empty() bool { return len(r.Entries) == 0 && len(r.Events) == 0 }

type category struct {
	Entries  []Entry   `yaml:"entries"`
	Events   []Event   `yaml:"events"`
	WindGate *WindGate `yaml:"wind_gate"`
}

type document struct {
	Voices     map[Voice]VoiceDefaults       `yaml:"voices"`
	Categories map[weather.Category]category `yaml:"categories"`
}

// Library is an immutable, validated recipe set.
type Library struct {
	voices     map[Voice]VoiceDefaults
	categories map[weather.Category]category
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
)

// Default returns the built-in library.
func Default() *Library {
	defaultOnce.Do(func() {
		lib, err := Parse(defaultRecipes)
		if err != nil {
			panic(fmt.Sprintf("recipe: embedded recipes invalid: %v", err))
		}
		defaultLib = lib
	})
	return defaultLib
}

// LoadFile reads and validates a recipe file.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipes: %w", err)
	}
	lib, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

// Parse decodes and validates a YAML recipe document.
func Parse(data []byte) (*Library, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode recipes: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &Library{voices: doc.Voices, categories: doc.Categories}, nil
}

func (d *document) validate() error {
	for v, def := range d.Voices {
		if !v.valid() || !v.Continuous() {
			return fmt.Errorf("%w: %q in voices", ErrUnknownVoice, v)
		}
		if def.Gain < 0 || def.Gain > 1 {
			return fmt.Errorf("%w: voice %s gain %v", ErrInvalid, v, def.Gain)
		}
	}
	for cat, c := range d.Categories {
		if !cat.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
		}
		for _, e := range c.Entries {
			if !e.Voice.valid() || !e.Voice.Continuous() {
				return fmt.Errorf("%w: %q in %s entries", ErrUnknownVoice, e.Voice, cat)
			}
			if _, ok := d.Voices[e.Voice]; !ok {
				return fmt.Errorf("%w: %s has no voice defaults", ErrUnknownVoice, e.Voice)
			}
			if e.Name == "" || e.Intensity < 0 || e.Intensity > 1 {
				return fmt.Errorf("%w: entry %q in %s", ErrInvalid, e.Name, cat)
			}
		}
		for _, ev := range c.Events {
			if err := ev.validate(cat); err != nil {
				return err
			}
		}
		if g := c.WindGate; g != nil {
			if g.Divisor <= 0 {
				return fmt.Errorf("%w: %s wind_gate divisor", ErrInvalid, cat)
			}
			if _, ok := d.Voices[Wind]; !ok {
				return fmt.Errorf("%w: wind_gate needs wind voice defaults", ErrUnknownVoice)
			}
		}
	}
	return nil
}

func (e Event) validate(cat weather.Category) error {
	if !e.Voice.valid() || e.Voice.Continuous() {
		return fmt.Errorf("%w: %q in %s events", ErrUnknownVoice, e.Voice, cat)
	}
	if e.Name == "" || e.MinInterval <= 0 || e.MaxInterval < e.MinInterval {
		return fmt.Errorf("%w: event %q interval in %s", ErrInvalid, e.Name, cat)
	}
	if e.Probability < 0 || e.Probability > 1 {
		return fmt.Errorf("%w: event %q probability in %s", ErrInvalid, e.Name, cat)
	}
	if s := e.Secondary; s != nil && (s.Probability < 0 || s.Probability > 1 || s.MaxDelay < s.MinDelay) {
		return fmt.Errorf("%w: event %q secondary in %s", ErrInvalid, e.Name, cat)
	}
	return nil
}

// Resolve returns the recipe for cat at the given wind speed (m/s).
// Unknown categories resolve as clear.
func (l *Library) Resolve(cat weather.Category, windSpeed float64) Recipe {
	if !cat.Valid() {
		cat = weather.Clear
	}
	c := l.categories[cat]
	r := Recipe{Category: cat}

	for _, e := range c.Entries {
		r.Entries = append(r.Entries, l.fill(e))
	}
	if g := c.WindGate; g != nil && windSpeed > g.Threshold {
		intensity := windSpeed / g.Divisor
		if g.Max > 0 {
			intensity = math.Min(intensity, g.Max)
		}
		r.Entries = append(r.Entries, l.fill(Entry{Name: string(Wind), Voice: Wind, Intensity: intensity}))
	}
	r.Events = append(r.Events, c.Events...)
	return r
}

func (l *Library) fill(e Entry) Entry {
	def := l.voices[e.Voice]
	e.TargetGain = def.Gain * e.Intensity
	e.FadeIn = def.FadeIn
	return e
}
