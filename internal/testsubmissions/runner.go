package testsubmissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/okian/tallyscore/internal/domain/model"
	"github.com/okian/tallyscore/pkg/logger"
)

const (
	questionsPerForm = 6
	filePermission   = 0o600
)

var errRedelivery = errors.New("redelivered submission was not answered from cache")

// Run creates cfg.Projects projects and scores every category on each.
// Up to cfg.Workers projects are in progress at once.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Named("send-submission")
	stats := &Stats{StartTime: time.Now(), Scores: make(map[string][]int)}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	r := &projectRunner{log: log, client: client, cfg: cfg, stats: stats}
	var wg sync.WaitGroup
	jobs := make(chan struct{})
	for range max(1, cfg.Workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				r.run(ctx)
			}
		}()
	}
send:
	for range cfg.Projects {
		select {
		case <-ctx.Done():
			break send
		case jobs <- struct{}{}:
		}
	}
	close(jobs)
	wg.Wait()

	if cfg.OutputFile != "" {
		if err := saveSubmissions(cfg.OutputFile, r.sent); err != nil {
			log.Warn(ctx, "failed to save submissions", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if err := verify(stats, cfg); err != nil {
		return stats, err
	}
	return stats, nil
}

// projectRunner drives whole projects; mu guards stats and sent.
type projectRunner struct {
	log    logger.Logger
	client *HTTPClient
	cfg    *Config

	mu    sync.Mutex
	stats *Stats
	sent  []Submission
}

// run creates one project and submits its category forms one after
// another. The server answers 409 to a category write that overlaps
// another write on the same project.
func (r *projectRunner) run(ctx context.Context) {
	intake := NewIntake(r.cfg.Email)
	r.record(intake)
	res, err := r.client.Send(ctx, intake)
	if err != nil {
		r.fail(ctx, "intake failed", err)
		return
	}
	r.mu.Lock()
	r.stats.ProjectsCreated++
	r.mu.Unlock()
	r.log.Info(ctx, "project created", logger.String("project_id", res.ProjectID))

	for _, c := range model.Categories {
		if ctx.Err() != nil {
			return
		}
		s := NewCategory(string(c), res.ProjectID, r.cfg.Email, questionsPerForm)
		r.record(s)
		r.submit(ctx, s)
	}
}

func (r *projectRunner) submit(ctx context.Context, s Submission) {
	res, err := r.client.Send(ctx, s)
	if err != nil {
		r.fail(ctx, "category failed", err, logger.String("category", s.Category))
		return
	}
	r.mu.Lock()
	r.stats.CategoriesScored++
	r.stats.Scores[res.Category] = append(r.stats.Scores[res.Category], res.Score)
	r.mu.Unlock()
	if r.cfg.Verbose {
		r.log.Info(ctx, "category scored", logger.String("category", res.Category), logger.Int("score", res.Score))
	}

	if !r.cfg.Redeliver {
		return
	}
	again, err := r.client.Send(ctx, s)
	if err != nil {
		r.fail(ctx, "redelivery failed", err, logger.String("category", s.Category))
		return
	}
	if !again.Duplicate || again.Score != res.Score {
		r.fail(ctx, "redelivery not replayed", errRedelivery, logger.String("category", s.Category))
		return
	}
	r.mu.Lock()
	r.stats.DuplicatesReplayed++
	r.mu.Unlock()
}

func (r *projectRunner) record(s Submission) {
	r.mu.Lock()
	r.sent = append(r.sent, s)
	r.mu.Unlock()
}

func (r *projectRunner) fail(ctx context.Context, msg string, err error, fields ...logger.Field) {
	r.mu.Lock()
	r.stats.Failed++
	r.mu.Unlock()
	r.log.Error(ctx, msg, append(fields, logger.Error(err))...)
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	resp, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// verify checks every expected category was scored within 0..100 and that
// redeliveries were all answered from cache.
func verify(stats *Stats, cfg *Config) error {
	if stats.Failed > 0 {
		return fmt.Errorf("%d submissions failed", stats.Failed)
	}
	want := stats.ProjectsCreated * len(model.Categories)
	if stats.CategoriesScored != want {
		return fmt.Errorf("scored %d categories, want %d", stats.CategoriesScored, want)
	}
	for c, scores := range stats.Scores {
		for _, s := range scores {
			if s < 0 || s > 100 {
				return fmt.Errorf("category %s scored %d", c, s)
			}
		}
	}
	if cfg.Redeliver && stats.DuplicatesReplayed != want {
		return fmt.Errorf("replayed %d redeliveries, want %d", stats.DuplicatesReplayed, want)
	}
	return nil
}

func saveSubmissions(path string, subs []Submission) error {
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal submissions: %w", err)
	}
	return os.WriteFile(path, data, filePermission)
}

// DisplayStats logs the final statistics.
func DisplayStats(ctx context.Context, stats *Stats) {
	fields := []logger.Field{
		logger.Int("projectsCreated", stats.ProjectsCreated),
		logger.Int("categoriesScored", stats.CategoriesScored),
		logger.Int("duplicatesReplayed", stats.DuplicatesReplayed),
		logger.Int("failed", stats.Failed),
		logger.String("duration", stats.Duration.String()),
	}
	for _, c := range model.Categories {
		scores := stats.Scores[string(c)]
		if len(scores) == 0 {
			continue
		}
		sum := 0
		for _, s := range scores {
			sum += s
		}
		fields = append(fields, logger.Float64("mean_"+string(c), float64(sum)/float64(len(scores))))
	}
	logger.Named("send-submission").Info(ctx, "final statistics", fields...)
}
