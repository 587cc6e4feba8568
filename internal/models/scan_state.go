package models

import (
	"encoding/json"
	"fmt"
)

// QueueEntry is one pending unit of crawl work: a URL discovered at a given
// depth from the seed.
type QueueEntry struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// EngineSnapshot is the serializable state a paused or stopped Crawl Engine
// can be resumed from. Sets are carried as lists on disk and reconstructed
// into maps in memory.
type EngineSnapshot struct {
	VisitedLinks []string      `json:"visited_links"`
	Results      []*ScanResult `json:"results"`
	Queue        []QueueEntry  `json:"queue"`
	Aborted      []QueueEntry  `json:"aborted"`

	visited map[string]bool
	catalog map[string]*ScanResult
}

// NewEngineSnapshot builds an empty snapshot ready for a fresh scan.
func NewEngineSnapshot() *EngineSnapshot {
	return &EngineSnapshot{
		VisitedLinks: []string{},
		Results:      []*ScanResult{},
		Queue:        []QueueEntry{},
		Aborted:      []QueueEntry{},
		visited:      make(map[string]bool),
		catalog:      make(map[string]*ScanResult),
	}
}

// Hydrate rebuilds the in-memory set/map views after a snapshot is loaded
// from storage (e.g. via EngineSnapshotFromJSON).
func (s *EngineSnapshot) Hydrate() {
	s.visited = make(map[string]bool, len(s.VisitedLinks))
	for _, u := range s.VisitedLinks {
		s.visited[u] = true
	}
	s.catalog = make(map[string]*ScanResult, len(s.Results))
	for _, r := range s.Results {
		if r.foundOnSet == nil {
			r.foundOnSet = make(map[string]bool, len(r.FoundOn))
			for _, f := range r.FoundOn {
				r.foundOnSet[f] = true
			}
		}
		s.catalog[r.URL] = r
	}
}

// Visited reports whether url has already been dequeued and processed.
func (s *EngineSnapshot) Visited(url string) bool {
	return s.visited[url]
}

// MarkVisited records url as processed and appends it to the persisted list
// if not already present.
func (s *EngineSnapshot) MarkVisited(url string) {
	if s.visited == nil {
		s.visited = make(map[string]bool)
	}
	if s.visited[url] {
		return
	}
	s.visited[url] = true
	s.VisitedLinks = append(s.VisitedLinks, url)
}

// Result returns the catalog entry for url, or nil if none exists yet.
func (s *EngineSnapshot) Result(url string) *ScanResult {
	if s.catalog == nil {
		return nil
	}
	return s.catalog[url]
}

// PutResult inserts or replaces the catalog entry for a URL.
func (s *EngineSnapshot) PutResult(r *ScanResult) {
	if s.catalog == nil {
		s.catalog = make(map[string]*ScanResult)
	}
	if _, exists := s.catalog[r.URL]; !exists {
		s.Results = append(s.Results, r)
	}
	s.catalog[r.URL] = r
}

// BrokenCount counts catalog entries that are broken-like: status
// broken/error or statusCode >= 400.
func (s *EngineSnapshot) BrokenCount() int {
	count := 0
	for _, r := range s.catalog {
		if r.IsBrokenLike() {
			count++
		}
	}
	return count
}

// ToJSON serializes the snapshot for persistence as the job's state blob.
func (s *EngineSnapshot) ToJSON() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal engine snapshot: %w", err)
	}
	return string(b), nil
}

// EngineSnapshotFromJSON deserializes and hydrates a snapshot previously
// written by ToJSON. An empty string yields a fresh, empty snapshot.
func EngineSnapshotFromJSON(data string) (*EngineSnapshot, error) {
	if data == "" {
		return NewEngineSnapshot(), nil
	}
	var s EngineSnapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal engine snapshot: %w", err)
	}
	if s.VisitedLinks == nil {
		s.VisitedLinks = []string{}
	}
	if s.Results == nil {
		s.Results = []*ScanResult{}
	}
	if s.Queue == nil {
		s.Queue = []QueueEntry{}
	}
	if s.Aborted == nil {
		s.Aborted = []QueueEntry{}
	}
	s.Hydrate()
	return &s, nil
}
