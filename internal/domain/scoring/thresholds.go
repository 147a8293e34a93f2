package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Domain keys of the four scored aptitude areas.
const (
	ReactionSpeed    = "reaction_speed"
	VehicleControl   = "vehicle_control"
	SpatialAwareness = "spatial_awareness"
	RoadBehavior     = "road_behavior"
)

// Unknown is reported when a score falls outside every band.
const Unknown = "Unknown"

// DomainMap maps questionnaire section names to domain keys. Sections not listed
// here are not scored.
var DomainMap = map[string]string{ //nolint:gochecknoglobals // fixed lookup table
	"Reaction Speed":    ReactionSpeed,
	"Vehicle Control":   VehicleControl,
	"Spatial Awareness": SpatialAwareness,
	"Road Behavior":     RoadBehavior,
}

// Band is one closed score range [Min, Max] with its category tag and label.
type Band struct {
	Tag   string  `json:"tag" koanf:"tag"`
	Min   float64 `json:"min" koanf:"min"`
	Max   float64 `json:"max" koanf:"max"`
	Label string  `json:"label" koanf:"label"`
}

// Contains reports whether score lies inside the band, bounds included.
func (b Band) Contains(score float64) bool {
	return b.Min <= score && score <= b.Max
}

// Table is an ordered list of bands. Scan order decides ties when bands overlap.
type Table []Band

// Category holds the capitalized tag and the human-readable label.
type Category struct {
	Tag   string
	Label string
}

// Categorize returns the first band containing score, or Unknown.
func (t Table) Categorize(score float64) Category {
	for _, b := range t {
		if b.Contains(score) {
			return Category{Tag: capitalize(b.Tag), Label: b.Label}
		}
	}
	return Category{Tag: Unknown, Label: Unknown}
}

// Thresholds maps a domain key to its table.
type Thresholds map[string]Table

// DefaultThresholds returns the stock bands for every domain.
func DefaultThresholds() Thresholds {
	bands := func(low, medium, high string) Table {
		return Table{
			{Tag: "low", Min: 1.0, Max: 2.0, Label: low},
			{Tag: "medium", Min: 2.1, Max: 3.2, Label: medium},
			{Tag: "high", Min: 3.3, Max: 4.0, Label: high},
		}
	}
	return Thresholds{
		ReactionSpeed:    bands("Slow", "Average", "Fast"),
		VehicleControl:   bands("Poor", "Average", "Excellent"),
		SpatialAwareness: bands("Very Low", "Average", "High"),
		RoadBehavior:     bands("Aggressive", "Cautious", "Safe"),
	}
}

// Categorize looks up the domain table; unknown domains categorize as Unknown.
func (th Thresholds) Categorize(domainKey string, score float64) Category {
	return th[domainKey].Categorize(score)
}

// capitalize mirrors str.capitalize: first rune upper, rest lower.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
