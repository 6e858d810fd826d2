package models

import (
	"time"
)

type Step string

const (
	StepIdle        Step = "idle"
	StepInitiated   Step = "initiated"
	StepLoading     Step = "loading"
	StepIndexing    Step = "indexing"
	StepFiltering   Step = "filtering"
	StepAggregating Step = "aggregating"
	StepRanking     Step = "ranking"
	StepCompleted   Step = "completed"
	StepFailed      Step = "failed"
)

const (
	RunStatusPending   = "pending"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunReport represents one detection run stored in MongoDB
type RunReport struct {
	RunID            string    `bson:"runId" json:"runId"`
	CorpusID         string    `bson:"corpusId" json:"corpusId"`
	Status           string    `bson:"status" json:"status"` // pending, completed, failed
	Error            string    `bson:"error,omitempty" json:"error,omitempty"`
	UpperBound       int       `bson:"upperBound" json:"upperBound"`
	PopularityScope  string    `bson:"popularityScope" json:"popularityScope"`
	IncludeSelfPairs bool      `bson:"includeSelfPairs" json:"includeSelfPairs"`
	Repositories     int       `bson:"repositories" json:"repositories"`
	Fingerprints     int       `bson:"fingerprints" json:"fingerprints"`
	DistinctHashes   int       `bson:"distinctHashes" json:"distinctHashes"`
	Interesting      int       `bson:"interesting" json:"interesting"`
	Documents        int       `bson:"documents" json:"documents"`
	Pairs            int       `bson:"pairs" json:"pairs"`
	MaxScore         int       `bson:"maxScore" json:"maxScore"`
	CreatedAt        time.Time `bson:"createdAt" json:"createdAt"`
	CompletedAt      time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// DocumentRef is the stored form of a (repository, revision, file) triple
type DocumentRef struct {
	Repository string `bson:"repository" json:"repository"`
	Revision   string `bson:"revision" json:"revision"`
	File       string `bson:"file" json:"file"`
}

// PairResult represents one ranked document pair of a run
type PairResult struct {
	RunID    string      `bson:"runId" json:"runId"`
	CorpusID string      `bson:"corpusId" json:"corpusId"`
	Rank     int         `bson:"rank" json:"rank"` // position in the ascending sequence
	Source   DocumentRef `bson:"source" json:"source"`
	Target   DocumentRef `bson:"target" json:"target"`
	Score    int         `bson:"score" json:"score"`
}

// RunRequest represents a request to start a detection run
type RunRequest struct {
	CorpusID string `json:"corpusId" binding:"required"`
}

// RunResponse represents the response from the run endpoint
type RunResponse struct {
	RunID    string `json:"runId"`
	CorpusID string `json:"corpusId"`
	Step     Step   `json:"step"`
}

// PairsResponse represents the ranked pairs of the latest completed run
type PairsResponse struct {
	RunID    string       `json:"runId"`
	CorpusID string       `json:"corpusId"`
	Total    int          `json:"total"`
	Pairs    []PairResult `json:"pairs"`
}

// RunStatusResponse represents the latest run of a corpus together with its live step
type RunStatusResponse struct {
	Step Step       `json:"step"`
	Run  *RunReport `json:"run"`
}
