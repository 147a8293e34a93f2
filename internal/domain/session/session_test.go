package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

func validUser() session.User {
	return session.User{FullName: "Ada Driver", Email: "ada@example.com", Gender: "Female", AgeGroup: "26-35"}
}

func TestUserValidate(t *testing.T) {
	Convey("Given registration payloads", t, func() {
		So(validUser().Validate(), ShouldBeNil)

		u := validUser()
		u.Gender = "  "
		err := u.Validate()
		So(errors.Is(err, session.ErrInvalidUser), ShouldBeTrue)
		So(err.Error(), ShouldEndWith, "Missing required field: gender")

		err = session.User{}.Validate()
		So(err.Error(), ShouldEndWith, "Missing required field: full_name")
	})
}

func TestSessionLifecycle(t *testing.T) {
	Convey("Given a new session", t, func() {
		now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		s := session.New("abc", validUser(), now)

		So(s.Completed, ShouldBeFalse)
		So(s.Answers, ShouldBeEmpty)
		So(s.LastSaved, ShouldBeNil)

		Convey("When progress is saved", func() {
			later := now.Add(time.Minute)
			s.SaveProgress(scoring.RawAnswers{"RS1": "3"}, 7, later)

			So(s.Answers["RS1"].String(), ShouldEqual, "3")
			So(s.CurrentQuestionIndex, ShouldEqual, 7)
			So(s.LastSaved.Equal(later), ShouldBeTrue)

			Convey("And saved again without answers", func() {
				s.SaveProgress(nil, 0, later)
				So(s.Answers, ShouldNotBeNil)
				So(s.Answers, ShouldBeEmpty)
			})
		})

		Convey("When completed twice", func() {
			So(s.Complete(now), ShouldBeNil)
			So(s.Complete(now), ShouldEqual, session.ErrCompleted)
			So(s.CompletedAt, ShouldNotBeNil)
		})

		Convey("When completed and reopened", func() {
			So(s.Complete(now), ShouldBeNil)
			s.Reopen()

			So(s.Completed, ShouldBeFalse)
			So(s.CompletedAt, ShouldBeNil)
			So(s.Complete(now), ShouldBeNil)
		})
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given an empty memory store", t, func() {
		ctx := context.Background()
		store := session.NewMemoryStore()

		Convey("Unknown ids are not found", func() {
			_, err := store.Get(ctx, "nope")
			So(err, ShouldEqual, session.ErrNotFound)
			So(store.Save(ctx, session.New("nope", validUser(), time.Now())), ShouldEqual, session.ErrNotFound)
		})

		Convey("When a session is created", func() {
			s := session.New("s1", validUser(), time.Now())
			So(store.Create(ctx, s), ShouldBeNil)
			n, _ := store.Count(ctx)
			So(n, ShouldEqual, 1)

			Convey("Then duplicates are rejected", func() {
				So(errors.Is(store.Create(ctx, s), session.ErrStoreFailure), ShouldBeTrue)
			})

			Convey("Then callers get copies", func() {
				s.Answers["RS1"] = "4"
				got, err := store.Get(ctx, "s1")
				So(err, ShouldBeNil)
				So(got.Answers, ShouldBeEmpty)

				got.CurrentQuestionIndex = 9
				again, _ := store.Get(ctx, "s1")
				So(again.CurrentQuestionIndex, ShouldEqual, 0)
			})

			Convey("Then saves overwrite", func() {
				got, _ := store.Get(ctx, "s1")
				got.SaveProgress(scoring.RawAnswers{"VC1": "2"}, 3, time.Now())
				So(store.Save(ctx, got), ShouldBeNil)

				again, _ := store.Get(ctx, "s1")
				So(again.CurrentQuestionIndex, ShouldEqual, 3)
				So(again.Answers, ShouldContainKey, "VC1")
			})
		})

		Convey("Concurrent creates are all kept", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_ = store.Create(ctx, session.New(fmt.Sprintf("s-%d", i), validUser(), time.Now()))
				}(i)
			}
			wg.Wait()
			n, _ := store.Count(ctx)
			So(n, ShouldEqual, 100)
		})
	})
}
