// Package domain holds the types shared by the forwarding service and its adapters
package domain

import (
	"strings"
	"time"
)

// ObjectRef locates one object in the blob store
type ObjectRef struct {
	Region string `json:"region"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String renders the ref as bucket/key
func (r ObjectRef) String() string { return r.Bucket + "/" + r.Key }

// compressedSuffixes mark objects stored compressed regardless of metadata
var compressedSuffixes = []string{".gz", ".gzip", ".deflate", ".zz"}

// LooksCompressed reports whether the key or content encoding names gzip or deflate
func LooksCompressed(key, contentEncoding string) bool {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip", "deflate":
		return true
	}
	k := strings.ToLower(key)
	for _, s := range compressedSuffixes {
		if strings.HasSuffix(k, s) {
			return true
		}
	}
	return false
}

// OnInvalid selects what a run does with a line that fails validation
type OnInvalid string

// Policies
const (
	OnInvalidAbort OnInvalid = "abort"
	OnInvalidSkip  OnInvalid = "skip"
)

// Stats summarises one pipeline run
type Stats struct {
	Lines      int           `json:"lines"`
	Events     int           `json:"events"`
	Identifies int           `json:"identifies"`
	Skipped    int           `json:"skipped"`
	Batches    int           `json:"batches"`
	BytesIn    int64         `json:"bytes_in"`
	BytesOut   int64         `json:"bytes_out"`
	Elapsed    time.Duration `json:"-"`
	ElapsedMS  int64         `json:"elapsed_ms"`
}

// RecordResult is the outcome of one notification record
type RecordResult struct {
	RunID string    `json:"run_id"`
	Ref   ObjectRef `json:"object"`
	Stats Stats     `json:"stats"`
	Code  string    `json:"code,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Report summarises one notification message
type Report struct {
	Records int            `json:"records"`
	Ignored int            `json:"ignored"`
	Results []RecordResult `json:"results"`
}

// Failed counts results that carry an error
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}
