package models

import (
	"time"
)

// Document processing statuses. Status is monotonic: a document starts in
// StatusProcessing and moves exactly once to a terminal status.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal reports whether a status admits no further transition.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// AnalysisOptions are the per-upload analysis switches requested by the user.
type AnalysisOptions struct {
	ShowTags            bool   `json:"show_tags"`
	ShowTopics          bool   `json:"show_topics"`
	AnalyzeImages       bool   `json:"analyze_images"`
	ShowRecommendations bool   `json:"show_recommendations"`
	Prompt              string `json:"prompt,omitempty"`
}

// Block is one content block of a completed analysis.
type Block struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type Document struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Filename        string          `json:"filename" db:"filename"`
	StorageKey      string          `json:"-" db:"storage_key"`
	Options         AnalysisOptions `json:"options"`
	Status          string          `json:"processing_status" db:"processing_status"`
	Title           *string         `json:"title,omitempty" db:"title"`
	Theme           *string         `json:"theme,omitempty" db:"theme"`
	Summary         *string         `json:"summary,omitempty" db:"summary"`
	Recommendations *string         `json:"recommendations,omitempty" db:"recommendations"`
	Tags            []string        `json:"tags,omitempty"`
	Blocks          []Block         `json:"blocks,omitempty"`
	FailureReason   *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	AnalyzedAt      *time.Time      `json:"analyzed_at,omitempty" db:"analyzed_at"`
}

// UploadRequest carries a parsed multipart upload into the service layer.
type UploadRequest struct {
	File     []byte
	Filename string
	UserID   string
	Options  AnalysisOptions
}

type UploadResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    string    `json:"processing_status"`
	WSURL     string    `json:"ws_url"`
	CreatedAt time.Time `json:"created_at"`
}

// TinyDocument is the lightweight projection used by list endpoints.
type TinyDocument struct {
	ID     string `json:"id" db:"id"`
	Status string `json:"processing_status" db:"processing_status"`
}

type ManyDocumentsResponse struct {
	Total   int            `json:"total"`
	Results []TinyDocument `json:"results"`
}

// AnalysisJob is the message handed to the work queue. It is immutable once
// enqueued; exactly one job is produced per created document.
type AnalysisJob struct {
	DocumentID          string `json:"document_id"`
	DocumentText        string `json:"document_text"`
	ShowTags            bool   `json:"show_tags"`
	ShowTopics          bool   `json:"show_topics"`
	AnalyzeImages       bool   `json:"analyze_images"`
	ShowRecommendations bool   `json:"show_recommendations"`
	Prompt              string `json:"prompt,omitempty"`
}

// Options reconstructs the analysis options the job was created with.
func (j AnalysisJob) Options() AnalysisOptions {
	return AnalysisOptions{
		ShowTags:            j.ShowTags,
		ShowTopics:          j.ShowTopics,
		AnalyzeImages:       j.AnalyzeImages,
		ShowRecommendations: j.ShowRecommendations,
		Prompt:              j.Prompt,
	}
}

// AnalysisResult is the structured output parsed from the analysis backend.
// Optional fields stay nil when the corresponding option was not requested.
type AnalysisResult struct {
	Title           string   `json:"title"`
	Theme           *string  `json:"theme,omitempty"`
	Summary         string   `json:"summary"`
	Recommendations *string  `json:"recommendations,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Blocks          []Block  `json:"blocks"`
}
