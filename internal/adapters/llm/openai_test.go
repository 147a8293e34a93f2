package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/drivescore/internal/domain/analysis"
	"github.com/okian/drivescore/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func testScores() scoring.Scores {
	var s scoring.Scores
	s.Set("Reaction Speed", scoring.DomainScore{Score: 3.4, Category: "High", CategoryLabel: "Fast", DomainKey: scoring.ReactionSpeed})
	return s
}

// completion wraps content in a chat completions response body.
func completion(content string) []byte {
	body, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
	return body
}

func TestClientAnalyze(t *testing.T) {
	Convey("Given a chat completions server", t, func() {
		var calls atomic.Int32
		var got chatRequest
		var auth string
		reply := func(w http.ResponseWriter) {
			_, _ = w.Write(completion(`{"driving_style":"Quick and alert.","recommended_course":"Defensive Driving - Anticipate hazards."}`))
		}
		handler := func(w http.ResponseWriter, r *http.Request) { reply(w) }

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&got)
			handler(w, r)
		}))
		defer srv.Close()

		client := NewClient("sk-test", WithBaseURL(srv.URL+"/"), WithModel("m1"), WithTimeout(2*time.Second))

		Convey("When the model answers with JSON", func() {
			res, err := client.Analyze(context.Background(), testScores())

			Convey("Then the result is parsed", func() {
				So(err, ShouldBeNil)
				So(res.DrivingStyle, ShouldEqual, "Quick and alert.")
				So(res.RecommendedCourse, ShouldEqual, "Defensive Driving - Anticipate hazards.")
			})

			Convey("And the request carries the prompt and settings", func() {
				So(auth, ShouldEqual, "Bearer sk-test")
				So(got.Model, ShouldEqual, "m1")
				So(got.Temperature, ShouldEqual, DefaultTemperature)
				So(got.ResponseFormat.Type, ShouldEqual, "json_object")
				So(got.Messages, ShouldHaveLength, 2)
				So(got.Messages[0].Role, ShouldEqual, "system")
				So(got.Messages[1].Content, ShouldContainSubstring, "- Reaction Speed: 3.40/4.0 (High - Fast)")
			})
		})

		Convey("When the course comes back as an object", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(completion("Here you go:\n```json\n" +
					`{"driving_style":"Steady.","recommended_course":{"course_name":"Eco Driving","description":"Smooth inputs."}}` + "\n```"))
			}
			res, err := client.Analyze(context.Background(), testScores())

			Convey("Then it is flattened", func() {
				So(err, ShouldBeNil)
				So(res.RecommendedCourse, ShouldEqual, "Eco Driving - Smooth inputs.")
			})
		})

		Convey("When a required field is missing", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(completion(`{"driving_style":"Steady."}`))
			}
			_, err := client.Analyze(context.Background(), testScores())

			Convey("Then every attempt is used and the error is malformed", func() {
				So(calls.Load(), ShouldEqual, defaultAttempts)
				So(errors.Is(err, analysis.ErrMalformed), ShouldBeTrue)
				var e *Error
				So(errors.As(err, &e), ShouldBeTrue)
			})
		})

		Convey("When the server fails once then recovers", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				if calls.Load() == 1 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				reply(w)
			}
			res, err := client.Analyze(context.Background(), testScores())

			Convey("Then the retry succeeds", func() {
				So(err, ShouldBeNil)
				So(res.DrivingStyle, ShouldEqual, "Quick and alert.")
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the server keeps failing", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}
			_, err := client.Analyze(context.Background(), testScores())

			Convey("Then the error is unavailable", func() {
				So(errors.Is(err, analysis.ErrUnavailable), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "status 500")
			})
		})

		Convey("When the server is slower than the timeout", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			}
			slow := NewClient("sk-test", WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
			_, err := slow.Analyze(context.Background(), testScores())

			Convey("Then the deadline is reported", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When the client has no key", func() {
			_, err := NewClient("", WithBaseURL(srv.URL)).Analyze(context.Background(), testScores())

			Convey("Then nothing is sent", func() {
				So(errors.Is(err, analysis.ErrNotConfigured), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When resolved through the analysis package with a broken server", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			}
			out := analysis.Resolve(context.Background(), client, testScores())

			Convey("Then the fallback is returned", func() {
				So(out.Source, ShouldEqual, analysis.SourceFallback)
				So(out.Reason, ShouldEqual, "malformed")
				So(out.Result, ShouldResemble, analysis.Fallback(testScores()))
			})
		})
	})
}

func TestExtractJSON(t *testing.T) {
	Convey("Given completions with surrounding text", t, func() {
		So(extractJSON(`noise {"a":{"b":1}} tail`), ShouldEqual, `{"a":{"b":1}}`)
		So(extractJSON(`{"s":"brace } inside"}`), ShouldEqual, `{"s":"brace } inside"}`)
		So(extractJSON(`} stray {"ok":true}`), ShouldEqual, `{"ok":true}`)
		So(extractJSON(`no object here`), ShouldBeEmpty)
	})
}
