package models

import "time"

// Document is one retrieved source after extraction.
type Document struct {
	URL  string
	Text string
	// Embedding is reserved and never populated by the pipeline.
	Embedding []float32
}

type Prediction struct {
	PYes        float64 `json:"p_yes"`
	PNo         float64 `json:"p_no"`
	InfoUtility float64 `json:"info_utility"`
	Confidence  float64 `json:"confidence"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	Calls        int `json:"calls"`
}

// Result is what a single prediction run hands back to its caller.
type Result struct {
	RunID            string        `json:"run_id"`
	Question         string        `json:"question"`
	Model            string        `json:"model"`
	Prediction       Prediction    `json:"prediction"`
	PredictionPrompt string        `json:"prediction_prompt"`
	Sources          []string      `json:"sources"`
	Usage            *Usage        `json:"usage,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
}

// ProgressEvent reports pipeline stage activity to front ends.
type ProgressEvent struct {
	RunID   string `json:"run_id"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

const (
	StageQueries = "queries"
	StageSearch  = "search"
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageSelect  = "select"
	StagePredict = "predict"
)
