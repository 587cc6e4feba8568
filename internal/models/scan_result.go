package models

import "encoding/json"

// ResultStatus is the classification of a single scanned URL.
type ResultStatus string

const (
	StatusOK       ResultStatus = "ok"
	StatusBroken   ResultStatus = "broken"
	StatusSkipped  ResultStatus = "skipped"
	StatusError    ResultStatus = "error"
	StatusExternal ResultStatus = "external"
)

// InitialMarker is the synthetic "found on" entry used for the seed URL; it
// is never persisted in a result's FoundOn set.
const InitialMarker = "initial"

// IsDefinitive reports whether the status reflects a completed fetch attempt,
// used to enforce that a definitive classification never regresses.
func (s ResultStatus) IsDefinitive() bool {
	return s == StatusOK || s == StatusBroken || s == StatusError
}

// ScanResult is the per-URL catalog entry produced during a scan.
type ScanResult struct {
	URL          string       `json:"url"`
	Status       ResultStatus `json:"status"`
	StatusCode   int          `json:"status_code,omitempty"`
	ContentType  string       `json:"content_type,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	FoundOn      []string     `json:"found_on"`
	UsedAuth     bool         `json:"used_auth"`

	foundOnSet map[string]bool
}

// NewScanResult creates a fresh catalog entry for url.
func NewScanResult(url string) *ScanResult {
	return &ScanResult{
		URL:        url,
		FoundOn:    []string{},
		foundOnSet: make(map[string]bool),
	}
}

// AddFoundOn records a page the URL was discovered on, excluding the
// synthetic seed marker, and keeps FoundOn monotone.
func (r *ScanResult) AddFoundOn(pageURL string) {
	if pageURL == "" || pageURL == InitialMarker {
		return
	}
	if r.foundOnSet == nil {
		r.foundOnSet = make(map[string]bool, len(r.FoundOn))
		for _, f := range r.FoundOn {
			r.foundOnSet[f] = true
		}
	}
	if r.foundOnSet[pageURL] {
		return
	}
	r.foundOnSet[pageURL] = true
	r.FoundOn = append(r.FoundOn, pageURL)
}

// IsBrokenLike reports whether the entry counts toward brokenCount: status
// in {broken, error}, or a status code of 400 or above.
func (r *ScanResult) IsBrokenLike() bool {
	if r.Status == StatusBroken || r.Status == StatusError {
		return true
	}
	return r.StatusCode >= 400
}

// ToJSON serializes a single result entry.
func (r *ScanResult) ToJSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ResultCatalogFromJSON reconstructs a catalog (map keyed by URL) from the
// list-of-entries form it is persisted as.
func ResultCatalogFromJSON(data string) (map[string]*ScanResult, error) {
	catalog := make(map[string]*ScanResult)
	if data == "" {
		return catalog, nil
	}
	var entries []*ScanResult
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		e.foundOnSet = make(map[string]bool, len(e.FoundOn))
		for _, f := range e.FoundOn {
			e.foundOnSet[f] = true
		}
		catalog[e.URL] = e
	}
	return catalog, nil
}

// ResultCatalogToJSON serializes a catalog back to its list-of-entries form.
func ResultCatalogToJSON(catalog map[string]*ScanResult) (string, error) {
	entries := make([]*ScanResult, 0, len(catalog))
	for _, e := range catalog {
		entries = append(entries, e)
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
