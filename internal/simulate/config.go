// Package simulate drives a running questionnaire service with concurrent
// synthetic users and checks that its statistics moved accordingly.
package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL string        // Base URL of the service
	Users   int           // Number of users to register and submit
	Workers int           // Number of concurrent workers
	Timeout time.Duration // HTTP request timeout
	Verbose bool          // Log every user
}

// Stats holds run statistics.
type Stats struct {
	Registered int
	Submitted  int
	Rejected   int
	Failed     int
	Fallbacks  int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

type user struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Gender   string `json:"gender"`
	AgeGroup string `json:"age_group"`
}

type registration struct {
	SessionID string `json:"session_id"`
}

type question struct {
	ID string `json:"id"`
}

type answerOption struct {
	Value int `json:"value"`
}

type catalogue struct {
	Questions      []question     `json:"questions"`
	Answers        []answerOption `json:"answers"`
	TotalQuestions int            `json:"total_questions"`
}

type submitRequest struct {
	SessionID string         `json:"session_id"`
	Answers   map[string]int `json:"answers"`
}

type submission struct {
	Scores   map[string]domainScore `json:"scores"`
	Analysis struct {
		DrivingStyle      string `json:"driving_style"`
		RecommendedCourse string `json:"recommended_course"`
	} `json:"llm_analysis"`
}

type domainScore struct {
	Score float64 `json:"score"`
}

// statistics mirrors the counters exposed by GET /api/statistics.
type statistics struct {
	TotalCompletions int            `json:"total_completions"`
	TotalStarted     int            `json:"total_started"`
	CompletionRate   float64        `json:"completion_rate"`
	DriverStyles     map[string]int `json:"driver_styles"`
}
