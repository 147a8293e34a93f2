package questionnaire

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// FlatQuestion is a question annotated with the section it came from.
type FlatQuestion struct {
	Question
	Section   string `json:"section"`
	SectionID int    `json:"section_id"`
}

// Flatten lists every question in section order.
func (q *Questionnaire) Flatten() []FlatQuestion {
	out := make([]FlatQuestion, 0, q.TotalQuestions())
	for _, s := range q.Sections {
		for _, question := range s.Questions {
			out = append(out, FlatQuestion{Question: question, Section: s.Name, SectionID: s.ID})
		}
	}
	return out
}

// Seed derives a PRNG seed from a session id (FNV-1a, 64 bit).
func Seed(sessionID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	return int64(h.Sum64()) //nolint:gosec // wrap-around is fine for a seed
}

// Shuffle returns a permutation of questions that depends only on seed.
// The input slice is left untouched.
func Shuffle(questions []FlatQuestion, seed int64) []FlatQuestion {
	out := make([]FlatQuestion, len(questions))
	copy(out, questions)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // presentation order, not security
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ShuffleFor orders questions for a session. Known sessions get a stable order;
// anonymous callers get a fresh one on every call.
func ShuffleFor(questions []FlatQuestion, sessionID string, known bool) []FlatQuestion {
	if known && sessionID != "" {
		return Shuffle(questions, Seed(sessionID))
	}
	return Shuffle(questions, time.Now().UnixNano())
}
