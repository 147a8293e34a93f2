package simulate

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

var (
	genders   = []string{"Female", "Male", "Non-binary", "Prefer not to say"}
	ageGroups = []string{"18-25", "26-35", "36-45", "46-55", "56+"}
	names     = []string{"Alex", "Sam", "Jordan", "Taylor", "Morgan", "Casey", "Riley", "Jamie"}
)

// randomInt returns a value in [0, n) using crypto/rand.
func randomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func pick(values []string) string { return values[randomInt(len(values))] }

// newUser builds a registrant with a unique email.
func newUser() user {
	id := uuid.NewString()
	return user{
		FullName: pick(names) + " " + id[:8],
		Email:    "sim." + id + "@example.com",
		Gender:   pick(genders),
		AgeGroup: pick(ageGroups),
	}
}

// answersFor picks a random allowed value for every question.
func answersFor(c catalogue) map[string]int {
	out := make(map[string]int, len(c.Questions))
	for _, q := range c.Questions {
		out[q.ID] = c.Answers[randomInt(len(c.Answers))].Value
	}
	return out
}

// fallbackOpenings are the first words of the built-in narratives the service
// returns when its analysis collaborator is unavailable.
var fallbackOpenings = []string{
	"You demonstrate strong driving capabilities",
	"You show average driving capabilities",
	"Your assessment indicates areas that need significant attention",
}

func isFallback(style string) bool {
	for _, p := range fallbackOpenings {
		if strings.HasPrefix(style, p) {
			return true
		}
	}
	return false
}
