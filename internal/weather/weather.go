// Package weather maps provider condition codes onto the fixed set of
// categories the soundscape and the visual layer share.
package weather

import "strings"

// Category is a coarse weather classification.
type Category string

const (
	Clear        Category = "clear"
	PartlyCloudy Category = "partly-cloudy"
	Cloudy       Category = "cloudy"
	Fog          Category = "fog"
	Drizzle      Category = "drizzle"
	Rain         Category = "rain"
	HeavyRain    Category = "heavy-rain"
	Snow         Category = "snow"
	HeavySnow    Category = "heavy-snow"
	Thunderstorm Category = "thunderstorm"
	Tornado      Category = "tornado"
)

// Categories lists every category in classification order.
var Categories = []Category{
	Clear, PartlyCloudy, Cloudy, Fog, Drizzle, Rain, HeavyRain,
	Snow, HeavySnow, Thunderstorm, Tornado,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// Conditions is one update from the weather provider.
type Conditions struct {
	Code        int
	Description string
	IsNight     bool
	WindSpeed   float64 // m/s
}

// Category classifies the update.
func (c Conditions) Category() Category {
	return Classify(c.Code, c.Description)
}

// Classify maps an OpenWeatherMap condition code to a category.
// The first digit selects the family; a few codes escalate within it.
// Unknown or missing codes fall back to Clear. The description is accepted
// for interface parity with the provider payload but does not affect the result.
func Classify(code int, _ string) Category {
	family := code / 100
	switch {
	case code <= 0:
		return Clear
	case family == 2:
		return Thunderstorm
	case family == 3:
		return Drizzle
	case family == 5:
		switch code {
		case 502, 503, 504:
			return HeavyRain
		}
		return Rain
	case family == 6:
		switch code {
		case 602, 622:
			return HeavySnow
		}
		return Snow
	case family == 7:
		if code == 781 {
			return Tornado
		}
		return Fog
	case code == 800:
		return Clear
	case family == 8:
		if code == 801 || code == 802 {
			return PartlyCloudy
		}
		return Cloudy
	}
	return Clear
}

// IsNightIcon reports whether a provider icon id ("01n", "10d") is a night icon.
func IsNightIcon(icon string) bool {
	return strings.HasSuffix(strings.TrimSpace(icon), "n")
}
