package analysis

import (
	"fmt"
	"strings"

	"github.com/okian/drivescore/internal/domain/scoring"
)

// Tier boundaries on the average score.
const (
	strongThreshold  = 3.3
	averageThreshold = 2.1
)

// Tier is the coarse overall rating used to pick fallback templates.
type Tier string

// Tiers, best first.
const (
	TierStrong         Tier = "strong"
	TierAverage        Tier = "average"
	TierNeedsAttention Tier = "needs-attention"
)

// TierFor classifies an average score.
func TierFor(avg float64) Tier {
	switch {
	case avg >= strongThreshold:
		return TierStrong
	case avg >= averageThreshold:
		return TierAverage
	default:
		return TierNeedsAttention
	}
}

// Summary is the input the fallback rules work from.
type Summary struct {
	Average float64
	Weakest string
	Tier    Tier
}

// Summarize averages the scores and finds the lowest one. Ties go to the name
// scored first. Empty scores give a zero average and no weakest domain.
func Summarize(scores scoring.Scores) Summary {
	names := scores.Names()
	if len(names) == 0 {
		return Summary{Tier: TierFor(0)}
	}

	sum := 0.0
	weakest := names[0]
	lowest, _ := scores.Get(weakest)
	for _, name := range names {
		ds, _ := scores.Get(name)
		sum += ds.Score
		if ds.Score < lowest.Score {
			weakest, lowest = name, ds
		}
	}
	avg := sum / float64(len(names))
	return Summary{Average: avg, Weakest: weakest, Tier: TierFor(avg)}
}

// Fallback builds a rule-based narrative. It needs no collaborator and is
// deterministic for a given input.
func Fallback(scores scoring.Scores) Result {
	s := Summarize(scores)
	weak := strings.ToLower(s.Weakest)

	switch s.Tier {
	case TierStrong:
		return Result{
			DrivingStyle: "You demonstrate strong driving capabilities across most areas. " +
				"Your overall performance indicates a safe and confident driver with good awareness and control.",
			RecommendedCourse: "Advanced Driving Techniques - A course to further refine your already strong skills " +
				"and learn defensive driving strategies for challenging situations.",
		}
	case TierAverage:
		return Result{
			DrivingStyle: "You show average driving capabilities with room for improvement. " +
				fmt.Sprintf("While you handle routine situations well, developing your %s would enhance your overall safety.", weak),
			RecommendedCourse: "Intermediate Driver Improvement Course - Focus on building confidence and skills, " +
				fmt.Sprintf("with special attention to %s.", weak),
		}
	default:
		return Result{
			DrivingStyle: fmt.Sprintf("Your assessment indicates areas that need significant attention, particularly in %s. ", weak) +
				"Focused practice and professional instruction will help build essential driving skills.",
			RecommendedCourse: "Comprehensive Driver Training Program - A structured course covering fundamental skills " +
				fmt.Sprintf("with intensive practice in %s and other critical areas.", weak),
		}
	}
}
