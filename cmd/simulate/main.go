package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/drivescore/internal/simulate"
	"github.com/okian/drivescore/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers   = 200
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	defaultTimeout = 45 * time.Second
	runTimeout     = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:5000", "Base URL of the service")
		users   = flag.Int("users", defaultUsers, "Number of users to register and submit")
		workers = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		format  = flag.String("log-format", "text", "Log format: text or json")
		verbose = flag.Bool("verbose", false, "Log every completed user")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL: *baseURL,
		Users:   *users,
		Workers: *workers,
		Timeout: *timeout,
		Verbose: *verbose,
	}
	if _, err := simulate.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
