// Package testsubmissions drives a running service with generated form
// submissions: one intake per project followed by every category form.
package testsubmissions

import "time"

// Config holds configuration for a submission run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Email      string        // Submitter email, must exist in the user directory
	Projects   int           // Number of projects to create
	Workers    int           // Projects submitted concurrently
	Redeliver  bool          // Send every category form twice
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for the generated payloads
	Verbose    bool          // Enable verbose logging
}

// Submission is one generated webhook delivery.
type Submission struct {
	Path     string         `json:"path"`
	Category string         `json:"category,omitempty"`
	Payload  map[string]any `json:"payload"`
}

// Result is the decoded response to a submission.
type Result struct {
	Status    int    `json:"-"`
	OK        bool   `json:"ok"`
	ProjectID string `json:"project_id"`
	Category  string `json:"category"`
	Score     int    `json:"score"`
	Duplicate bool   `json:"duplicate"`
	Error     string `json:"error"`
}

// Stats holds run statistics.
type Stats struct {
	ProjectsCreated    int
	CategoriesScored   int
	DuplicatesReplayed int
	Failed             int
	Scores             map[string][]int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
