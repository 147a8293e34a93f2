package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/drivescore/pkg/logger"
)

// ErrVerification reports that the service counters did not move as expected.
var ErrVerification = errors.New("statistics verification failed")

// outcome of one simulated user.
type outcome int

const (
	outcomeSubmitted outcome = iota
	outcomeFallback
	outcomeRejected
	outcomeFailed
)

// Run executes a complete simulation: health check, concurrent users and
// statistics verification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Named("simulate")
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	if _, err := c.get(ctx, "/api/health", nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	var before statistics
	if _, err := c.get(ctx, "/api/statistics", &before); err != nil {
		return stats, fmt.Errorf("reading statistics failed: %w", err)
	}

	runUsers(ctx, cfg, c, log, stats)

	var after statistics
	if _, err := c.get(ctx, "/api/statistics", &after); err != nil {
		return stats, fmt.Errorf("reading statistics failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if err := verify(before, after, stats); err != nil {
		return stats, err
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// runUsers fans users out over a worker pool.
func runUsers(ctx context.Context, cfg *Config, c *client, log logger.Logger, stats *Stats) {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var registered, submitted, fallbacks, rejected, failed int64
	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				res, ok := simulateUser(ctx, c, log, cfg.Verbose, n)
				if ok {
					atomic.AddInt64(&registered, 1)
				}
				switch res {
				case outcomeSubmitted:
					atomic.AddInt64(&submitted, 1)
				case outcomeFallback:
					atomic.AddInt64(&submitted, 1)
					atomic.AddInt64(&fallbacks, 1)
				case outcomeRejected:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < cfg.Users; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()

	stats.Registered = int(atomic.LoadInt64(&registered))
	stats.Submitted = int(atomic.LoadInt64(&submitted))
	stats.Fallbacks = int(atomic.LoadInt64(&fallbacks))
	stats.Rejected = int(atomic.LoadInt64(&rejected))
	stats.Failed = int(atomic.LoadInt64(&failed))
}

// simulateUser registers, fetches the questionnaire, saves progress halfway
// and submits. ok reports whether registration succeeded.
func simulateUser(ctx context.Context, c *client, log logger.Logger, verbose bool, n int) (outcome, bool) {
	var reg registration
	if _, err := c.post(ctx, "/api/register", newUser(), &reg); err != nil {
		log.Warn(ctx, "registration failed", logger.Int("user", n), logger.Error(err))
		return outcomeFailed, false
	}

	var cat catalogue
	if _, err := c.get(ctx, "/api/questionnaire?session_id="+reg.SessionID, &cat); err != nil {
		log.Warn(ctx, "questionnaire fetch failed", logger.String("session_id", reg.SessionID), logger.Error(err))
		return outcomeFailed, true
	}
	if len(cat.Questions) == 0 || len(cat.Answers) == 0 {
		log.Warn(ctx, "questionnaire is empty", logger.String("session_id", reg.SessionID))
		return outcomeFailed, true
	}

	answers := answersFor(cat)
	half := make(map[string]int, len(answers)/2)
	for _, q := range cat.Questions[:len(cat.Questions)/2] {
		half[q.ID] = answers[q.ID]
	}
	progress := map[string]any{"session_id": reg.SessionID, "answers": half, "current_question_index": len(half)}
	if _, err := c.post(ctx, "/api/save-progress", progress, nil); err != nil {
		log.Warn(ctx, "saving progress failed", logger.String("session_id", reg.SessionID), logger.Error(err))
		return outcomeFailed, true
	}

	var sub submission
	status, err := c.post(ctx, "/api/submit", submitRequest{SessionID: reg.SessionID, Answers: answers}, &sub)
	switch {
	case err == nil:
	case status == http.StatusBadRequest || status == http.StatusConflict:
		log.Warn(ctx, "submission rejected", logger.String("session_id", reg.SessionID), logger.Error(err))
		return outcomeRejected, true
	default:
		log.Warn(ctx, "submission failed", logger.String("session_id", reg.SessionID), logger.Error(err))
		return outcomeFailed, true
	}

	if verbose {
		log.Info(ctx, "user completed",
			logger.String("session_id", reg.SessionID),
			logger.Int("domains", len(sub.Scores)),
			logger.String("driving_style", sub.Analysis.DrivingStyle))
	}
	if isFallback(sub.Analysis.DrivingStyle) {
		return outcomeFallback, true
	}
	return outcomeSubmitted, true
}

// verify checks the counters moved at least as far as this run pushed them.
// Other clients may be using the service at the same time.
func verify(before, after statistics, stats *Stats) error {
	if got := after.TotalStarted - before.TotalStarted; got < stats.Registered {
		return fmt.Errorf("%w: total_started grew by %d, want at least %d", ErrVerification, got, stats.Registered)
	}
	if got := after.TotalCompletions - before.TotalCompletions; got < stats.Submitted {
		return fmt.Errorf("%w: total_completions grew by %d, want at least %d", ErrVerification, got, stats.Submitted)
	}
	if after.TotalCompletions > after.TotalStarted {
		return fmt.Errorf("%w: %d completions exceed %d started", ErrVerification, after.TotalCompletions, after.TotalStarted)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("registered", stats.Registered),
		logger.Int("submitted", stats.Submitted),
		logger.Int("fallbacks", stats.Fallbacks),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("submissionsPerSecond", perSecond))
}
