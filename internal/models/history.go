package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// HistoryEntry is the durable record of one completed scan, written once by
// the Job Service on the transition to completed into the scan_history
// table. Stopped and failed jobs get no entry.
type HistoryEntry struct {
	ID              string       `json:"id"`
	JobID           string       `json:"job_id"`
	ScanURL         string       `json:"scan_url"`
	ScanDate        time.Time    `json:"scan_date"`
	DurationSeconds float64      `json:"duration_seconds"`
	Config          ScanConfig   `json:"config"`
	Results         []ScanResult `json:"results"`
	FinalStatus     JobStatus    `json:"final_status"`
	BrokenCount     int          `json:"broken_count"`
}

// NewHistoryEntry builds a history record from a finished job and its final
// result catalog.
func NewHistoryEntry(id string, job *ScanJob, catalog map[string]*ScanResult) *HistoryEntry {
	results := make([]ScanResult, 0, len(catalog))
	broken := 0
	for _, r := range catalog {
		results = append(results, *r)
		if r.IsBrokenLike() {
			broken++
		}
	}

	var duration float64
	if job.StartedAt != nil && job.FinishedAt != nil {
		duration = job.FinishedAt.Sub(*job.StartedAt).Seconds()
	}

	return &HistoryEntry{
		ID:              id,
		JobID:           job.ID,
		ScanURL:         job.ScanURL,
		ScanDate:        time.Now(),
		DurationSeconds: duration,
		Config:          job.Config,
		Results:         results,
		FinalStatus:     job.Status,
		BrokenCount:     broken,
	}
}

// ToJSON serializes the entry for storage (the results blob column).
func (h *HistoryEntry) ToJSON() (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal history entry: %w", err)
	}
	return string(b), nil
}

// HistoryEntryFromJSON deserializes a record previously written by ToJSON.
func HistoryEntryFromJSON(data string) (*HistoryEntry, error) {
	var h HistoryEntry
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("unmarshal history entry: %w", err)
	}
	return &h, nil
}
