package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/drivescore/internal/domain/questionnaire"
)

// ErrValidation is the kind shared by every answer validation failure.
var ErrValidation = errors.New("invalid answers")

// ValidationError carries the message shown to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RawAnswer is one answer exactly as the client sent it: the JSON token text,
// so `3`, `"3"`, `true` and `null` stay distinguishable until validation.
type RawAnswer string

// UnmarshalJSON keeps the token text. It never fails on valid JSON.
func (a *RawAnswer) UnmarshalJSON(data []byte) error {
	*a = RawAnswer(bytes.TrimSpace(data))
	return nil
}

// MarshalJSON writes the token back unchanged. Text that is not valid JSON is
// written as a string.
func (a RawAnswer) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	if json.Valid([]byte(a)) {
		return []byte(a), nil
	}
	return json.Marshal(string(a))
}

// Int returns the answer as an integer. Only bare JSON integer tokens qualify;
// strings, booleans, null, fractions and exponents do not.
func (a RawAnswer) Int() (int, bool) {
	s := string(a)
	if s == "" || strings.ContainsAny(s, ".eE+\"") {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (a RawAnswer) String() string { return string(a) }

// RawAnswers maps question id to the client's answer token.
type RawAnswers map[string]RawAnswer

// Validate checks the answer count against the questionnaire, that at least one
// answer belongs to a question, and that every answer is an integer in range.
// It returns the typed answers on success. Beyond that, which ids were
// answered is not checked.
func Validate(raw RawAnswers, sections []questionnaire.Section) (Answers, error) {
	total := 0
	for _, s := range sections {
		total += len(s.Questions)
	}
	if len(raw) < total {
		return nil, &ValidationError{Message: fmt.Sprintf("Only %d of %d questions answered", len(raw), total)}
	}

	known := make(map[string]struct{}, total)
	for _, s := range sections {
		for _, q := range s.Questions {
			known[q.ID] = struct{}{}
		}
	}
	matched := 0
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
		if _, ok := known[id]; ok {
			matched++
		}
	}
	sort.Strings(ids)

	out := make(Answers, len(raw))
	for _, id := range ids {
		v, ok := raw[id].Int()
		if !ok || v < MinAnswer || v > MaxAnswer {
			return nil, &ValidationError{Message: fmt.Sprintf("Invalid answer value for question %s: %s", id, literal(raw[id]))}
		}
		out[id] = v
	}
	if total > 0 && matched == 0 {
		return nil, &ValidationError{Message: "No answers match the questionnaire questions"}
	}
	return out, nil
}

// literal renders an answer for an error message; a missing token reads null.
func literal(a RawAnswer) string {
	if a == "" {
		return "null"
	}
	return string(a)
}
