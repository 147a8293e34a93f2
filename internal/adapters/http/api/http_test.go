package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/drivescore/internal/adapters/http/api"
	"github.com/okian/drivescore/internal/adapters/repository"
	service "github.com/okian/drivescore/internal/app"
	"github.com/okian/drivescore/internal/domain/questionnaire"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/internal/domain/session"
	"github.com/okian/drivescore/internal/domain/statistics"
	"github.com/okian/drivescore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func catalogue() questionnaire.Static {
	return questionnaire.Static{Q: &questionnaire.Questionnaire{
		Sections: []questionnaire.Section{
			{ID: 1, Name: "Reaction Speed", Questions: []questionnaire.Question{{ID: "RS1", Text: "a"}, {ID: "RS2", Text: "b", Reverse: true}}},
			{ID: 2, Name: "Vehicle Control", Questions: []questionnaire.Question{{ID: "VC1", Text: "c"}, {ID: "VC2", Text: "d"}}},
		},
		Answers: []questionnaire.AnswerOption{{Value: 1, Label: "Never"}, {Value: 2, Label: "Sometimes"}, {Value: 3, Label: "Often"}, {Value: 4, Label: "Always"}},
	}}
}

const registerBody = `{"full_name":"Ada Driver","email":"ada@example.com","gender":"Female","age_group":"26-35"}`

func newHandler(t *testing.T) http.Handler {
	svc := service.New(service.WithQuestionnaire(catalogue()))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)
	return api.NewServer(svc).Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorOf(w *httptest.ResponseRecorder) string {
	var out struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out.Error
}

func register(h http.Handler) string {
	w := do(h, http.MethodPost, "/api/register", registerBody)
	var reg service.Registration
	_ = json.Unmarshal(w.Body.Bytes(), &reg)
	return reg.SessionID
}

func TestRoutes(t *testing.T) {
	Convey("Given the API handler", t, func() {
		h := newHandler(t)

		Convey("Health reports healthy", func() {
			w := do(h, http.MethodGet, "/api/health", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"healthy"`)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})

		Convey("Unknown paths return the not found message", func() {
			w := do(h, http.MethodGet, "/api/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorOf(w), ShouldEqual, "Endpoint not found")
		})

		Convey("Preflight requests are answered without a body", func() {
			w := do(h, http.MethodOptions, "/api/submit", "")
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(w.Header().Get("Access-Control-Allow-Headers"), ShouldEqual, "Content-Type")
		})

		Convey("Metrics are exposed", func() {
			do(h, http.MethodGet, "/api/health", "")
			w := do(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})
	})
}

func TestRegister(t *testing.T) {
	Convey("Given the API handler", t, func() {
		h := newHandler(t)

		Convey("A complete user is registered", func() {
			w := do(h, http.MethodPost, "/api/register", registerBody)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var reg service.Registration
			So(json.Unmarshal(w.Body.Bytes(), &reg), ShouldBeNil)
			So(reg.SessionID, ShouldNotBeEmpty)
			So(reg.Message, ShouldEqual, "Registration successful")
		})

		Convey("A missing field names the field", func() {
			w := do(h, http.MethodPost, "/api/register", `{"full_name":"Ada","email":"a@b.c","gender":"F"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorOf(w), ShouldEqual, "Missing required field: age_group")
		})

		Convey("A malformed body is rejected", func() {
			w := do(h, http.MethodPost, "/api/register", `{"full_name":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorOf(w), ShouldEqual, "Invalid JSON body")
		})

		Convey("Started count follows registrations", func() {
			register(h)
			register(h)
			w := do(h, http.MethodGet, "/api/statistics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var st statistics.Statistics
			So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
			So(st.TotalStarted, ShouldEqual, 2)
			So(st.TotalCompletions, ShouldEqual, 0)
		})
	})
}

func TestQuestionnaireAndProgress(t *testing.T) {
	Convey("Given a registered session", t, func() {
		h := newHandler(t)
		id := register(h)

		Convey("The questionnaire is stable for the session", func() {
			first := do(h, http.MethodGet, "/api/questionnaire?session_id="+id, "")
			second := do(h, http.MethodGet, "/api/questionnaire?session_id="+id, "")
			So(first.Code, ShouldEqual, http.StatusOK)
			So(first.Body.String(), ShouldEqual, second.Body.String())

			var c service.Catalogue
			So(json.Unmarshal(first.Body.Bytes(), &c), ShouldBeNil)
			So(c.TotalQuestions, ShouldEqual, 4)
			So(c.Answers, ShouldHaveLength, 4)
		})

		Convey("The questionnaire is served without a session", func() {
			w := do(h, http.MethodGet, "/api/questionnaire", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Saved progress can be loaded back", func() {
			w := do(h, http.MethodPost, "/api/save-progress",
				`{"session_id":"`+id+`","answers":{"RS1":3},"current_question_index":1}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Progress saved successfully")

			w = do(h, http.MethodGet, "/api/load-progress/"+id, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var p service.Progress
			So(json.Unmarshal(w.Body.Bytes(), &p), ShouldBeNil)
			So(p.CurrentQuestionIndex, ShouldEqual, 1)
			So(string(p.Answers["RS1"]), ShouldEqual, "3")
			So(p.LastSaved, ShouldNotBeNil)
			So(p.User.Email, ShouldEqual, "ada@example.com")
		})

		Convey("Saving to an unknown session is rejected", func() {
			w := do(h, http.MethodPost, "/api/save-progress", `{"session_id":"nope","answers":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorOf(w), ShouldEqual, "Invalid session ID")
		})

		Convey("Saving without a session id is rejected", func() {
			w := do(h, http.MethodPost, "/api/save-progress", `{"answers":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorOf(w), ShouldEqual, "Invalid session ID")
		})

		Convey("Loading an unknown session is not found", func() {
			w := do(h, http.MethodGet, "/api/load-progress/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorOf(w), ShouldEqual, "Session not found")
		})
	})
}

func TestSubmit(t *testing.T) {
	Convey("Given a registered session", t, func() {
		h := newHandler(t)
		id := register(h)
		full := `{"session_id":"` + id + `","answers":{"RS1":4,"RS2":1,"VC1":2,"VC2":2}}`

		Convey("A complete submission is scored with the fallback analysis", func() {
			w := do(h, http.MethodPost, "/api/submit", full)
			So(w.Code, ShouldEqual, http.StatusOK)

			var sub struct {
				ResultID string                         `json:"result_id"`
				Scores   map[string]scoring.DomainScore `json:"scores"`
				Analysis struct {
					DrivingStyle      string `json:"driving_style"`
					RecommendedCourse string `json:"recommended_course"`
				} `json:"llm_analysis"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &sub), ShouldBeNil)
			So(sub.Scores["Reaction Speed"].Score, ShouldEqual, 4.0)
			So(sub.Scores["Vehicle Control"].Score, ShouldEqual, 2.0)
			So(sub.Analysis.DrivingStyle, ShouldNotBeEmpty)
			So(sub.Analysis.RecommendedCourse, ShouldNotBeEmpty)
			So(sub.ResultID, ShouldNotBeEmpty)

			Convey("The stored result is served by its id", func() {
				w := do(h, http.MethodGet, "/api/results/"+sub.ResultID, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var res repository.Result
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.User.Email, ShouldEqual, "ada@example.com")
				So(res.Analysis.DrivingStyle, ShouldEqual, sub.Analysis.DrivingStyle)
			})

			Convey("An unknown result id is not found", func() {
				w := do(h, http.MethodGet, "/api/results/999", "")
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(errorOf(w), ShouldEqual, "Result not found")
			})

			Convey("Statistics count the completion", func() {
				w := do(h, http.MethodGet, "/api/statistics", "")
				var st statistics.Statistics
				So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
				So(st.TotalCompletions, ShouldEqual, 1)
				So(st.CompletionRate, ShouldEqual, 100.0)
				So(st.AverageScores["Reaction Speed"], ShouldEqual, 4.0)
			})

			Convey("A second submission is refused", func() {
				w := do(h, http.MethodPost, "/api/submit", full)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorOf(w), ShouldEqual, "Questionnaire already completed")
			})

			Convey("Progress of a completed session cannot be loaded", func() {
				w := do(h, http.MethodGet, "/api/load-progress/"+id, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorOf(w), ShouldEqual, "Questionnaire already completed")
			})
		})

		Convey("An incomplete submission reports the count", func() {
			w := do(h, http.MethodPost, "/api/submit", `{"session_id":"`+id+`","answers":{"RS1":4}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorOf(w), ShouldEqual, "Only 1 of 4 questions answered")
		})

		Convey("An out of range answer is rejected", func() {
			w := do(h, http.MethodPost, "/api/submit", `{"session_id":"`+id+`","answers":{"RS1":4,"RS2":1,"VC1":2,"VC2":7}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorOf(w), ShouldContainSubstring, "Invalid answer value for question VC2")
		})

		Convey("Answers that are not bare integers get a per-question message", func() {
			for token, want := range map[string]string{
				`"3"`:   `Invalid answer value for question VC2: "3"`,
				`true`:  `Invalid answer value for question VC2: true`,
				`null`:  `Invalid answer value for question VC2: null`,
				`"abc"`: `Invalid answer value for question VC2: "abc"`,
			} {
				w := do(h, http.MethodPost, "/api/submit", `{"session_id":"`+id+`","answers":{"RS1":4,"RS2":1,"VC1":2,"VC2":`+token+`}}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorOf(w), ShouldEqual, want)
			}
		})

		Convey("Answers for unknown questions are rejected", func() {
			w := do(h, http.MethodPost, "/api/submit", `{"session_id":"`+id+`","answers":{"X1":4,"X2":1,"X3":2,"X4":2}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorOf(w), ShouldEqual, "No answers match the questionnaire questions")
		})

		Convey("An unknown session is rejected", func() {
			w := do(h, http.MethodPost, "/api/submit", `{"session_id":"nope","answers":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorOf(w), ShouldEqual, "Invalid session ID")
		})
	})
}

type brokenDeps struct{ err error }

func (b brokenDeps) Register(context.Context, session.User) (service.Registration, error) {
	return service.Registration{}, b.err
}

func (b brokenDeps) Questionnaire(context.Context, string) (service.Catalogue, error) {
	return service.Catalogue{}, b.err
}

func (b brokenDeps) SaveProgress(context.Context, string, scoring.RawAnswers, int) (time.Time, error) {
	return time.Time{}, b.err
}

func (b brokenDeps) LoadProgress(context.Context, string) (service.Progress, error) {
	return service.Progress{}, b.err
}

func (b brokenDeps) Submit(context.Context, string, scoring.RawAnswers) (service.Submission, error) {
	return service.Submission{}, b.err
}

func (b brokenDeps) Statistics(context.Context) (statistics.Statistics, error) {
	return statistics.Statistics{}, b.err
}

func (b brokenDeps) Result(context.Context, string) (repository.Result, error) {
	return repository.Result{}, b.err
}

func TestFailureMapping(t *testing.T) {
	Convey("Given dependencies that fail", t, func() {
		Convey("Unexpected errors become a generic 500", func() {
			h := api.NewServer(brokenDeps{err: errors.New("disk on fire")}).Handler()
			w := do(h, http.MethodGet, "/api/statistics", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(errorOf(w), ShouldEqual, "Internal server error")
			So(w.Body.String(), ShouldNotContainSubstring, "disk on fire")
		})

		Convey("A concurrent submission is a conflict", func() {
			h := api.NewServer(brokenDeps{err: service.ErrInFlight}).Handler()
			w := do(h, http.MethodPost, "/api/submit", `{"session_id":"s","answers":{}}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(errorOf(w), ShouldEqual, "Submission already in progress")
		})

		Convey("A result lookup that fails is an internal error", func() {
			h := api.NewServer(brokenDeps{err: service.ErrPersistence}).Handler()
			w := do(h, http.MethodGet, "/api/results/1", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("A missing questionnaire is an internal error", func() {
			h := api.NewServer(brokenDeps{err: service.ErrNoQuestionnaire}).Handler()
			w := do(h, http.MethodGet, "/api/questionnaire", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestHealthClock(t *testing.T) {
	Convey("The health timestamp comes from the configured clock", t, func() {
		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		h := api.NewServer(brokenDeps{}, api.WithClock(func() time.Time { return at })).Handler()
		w := do(h, http.MethodGet, "/api/health", "")
		So(w.Body.String(), ShouldContainSubstring, `"timestamp":"2024-05-01T12:00:00Z"`)
	})
}
