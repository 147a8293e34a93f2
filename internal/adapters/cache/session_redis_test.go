package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/drivescore/internal/adapters/cache"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

// redisClient connects to DRIVESCORE_TEST_REDIS_ADDR or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("DRIVESCORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DRIVESCORE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unreachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSessionStore(t *testing.T) {
	client := redisClient(t)

	Convey("Given a redis session store with a private prefix", t, func() {
		ctx := context.Background()
		prefix := "drivescore-test:" + uuid.NewString() + ":"
		store := cache.NewSessionStore(client, cache.WithKeyPrefix(prefix), cache.WithTTL(time.Minute))
		user := session.User{FullName: "Sam", Email: "sam@example.com", Gender: "Male", AgeGroup: "18-25"}

		Reset(func() {
			iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		})

		Convey("Unknown ids are not found", func() {
			_, err := store.Get(ctx, "nope")
			So(err, ShouldEqual, session.ErrNotFound)
			So(store.Save(ctx, session.New("nope", user, time.Now())), ShouldEqual, session.ErrNotFound)
		})

		Convey("When a session is created and updated", func() {
			s := session.New("abc", user, time.Now().UTC())
			So(store.Create(ctx, s), ShouldBeNil)

			s.SaveProgress(scoring.RawAnswers{"RS1": "2"}, 4, time.Now().UTC())
			So(store.Save(ctx, s), ShouldBeNil)

			Convey("Then the latest write is returned", func() {
				got, err := store.Get(ctx, "abc")
				So(err, ShouldBeNil)
				So(got.User, ShouldResemble, user)
				So(got.CurrentQuestionIndex, ShouldEqual, 4)
				So(got.Answers["RS1"].String(), ShouldEqual, "2")
			})

			Convey("Then the key carries the TTL", func() {
				ttl, err := client.TTL(ctx, prefix+"abc").Result()
				So(err, ShouldBeNil)
				So(ttl, ShouldBeGreaterThan, 0)
				So(ttl, ShouldBeLessThanOrEqualTo, time.Minute)
			})

			Convey("Then duplicates are rejected and counted once", func() {
				So(store.Create(ctx, s), ShouldNotBeNil)
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})
	})
}
