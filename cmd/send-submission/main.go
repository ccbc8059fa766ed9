package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/tallyscore/internal/testsubmissions"
	"github.com/okian/tallyscore/pkg/logger"
)

// Default configuration constants.
const (
	defaultProjects = 1
	defaultWorkers  = 3
	defaultTimeout  = 30 * time.Second
	defaultRunLimit = 5 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "Base URL of the service")
		email     = flag.String("email", "", "Submitter email known to the user directory")
		projects  = flag.Int("projects", defaultProjects, "Number of projects to create")
		workers   = flag.Int("workers", defaultWorkers, "Projects submitted concurrently")
		redeliver = flag.Bool("redeliver", false, "Send every category form twice")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		output    = flag.String("output", "", "Write generated payloads to this JSON file")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if *email == "" {
		os.Stderr.WriteString("-email is required\n")
		flag.Usage()
		os.Exit(2)
	}
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	stats, err := testsubmissions.Run(ctx, &testsubmissions.Config{
		BaseURL:    *baseURL,
		Email:      *email,
		Projects:   *projects,
		Workers:    *workers,
		Redeliver:  *redeliver,
		Timeout:    *timeout,
		OutputFile: *output,
		Verbose:    *verbose,
	})
	testsubmissions.DisplayStats(ctx, stats)
	if err != nil {
		os.Stderr.WriteString("run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
