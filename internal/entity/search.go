package entity

// SearchStatus is the outcome of a single search call.
type SearchStatus string

const (
	SearchSuccess SearchStatus = "success"
	SearchFailure SearchStatus = "failure"
)

// SearchHit is one organic result block of a search results page.
type SearchHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchResult is the payload returned by the search API for one query.
// Raw is the text handed to the field extractor.
type SearchResult struct {
	Query      string       `json:"query"`
	Status     SearchStatus `json:"status"`
	Raw        string       `json:"raw,omitempty"`
	Hits       []SearchHit  `json:"hits,omitempty"`
	StatusCode int          `json:"status_code,omitempty"`
	Attempts   int          `json:"attempts"`
	Cached     bool         `json:"cached,omitempty"`
	Err        error        `json:"-"`
}

// Failed reports whether the search did not produce a usable payload.
func (r SearchResult) Failed() bool {
	return r.Status != SearchSuccess
}

// ErrorDetail returns the failure message, or "" on success.
func (r SearchResult) ErrorDetail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
