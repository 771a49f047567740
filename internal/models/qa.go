package models

import "time"

// LinkResult is the outcome of one best-effort link lookup. An empty URLs
// slice with a nil Err means the provider had nothing to offer.
type LinkResult struct {
	URLs []string `json:"urls"`
	Err  error    `json:"-"`
}

// Failed reports whether the provider errored rather than returning no results.
func (r LinkResult) Failed() bool {
	return r.Err != nil
}

// LinkSet holds the web and video links recommended for a question.
type LinkSet struct {
	Web   LinkResult `json:"web"`
	Video LinkResult `json:"video"`
}

// Warnings returns the provider errors as strings, for rendering as
// non-blocking notices.
func (s LinkSet) Warnings() []string {
	var warnings []string
	if s.Web.Failed() {
		warnings = append(warnings, "web links unavailable: "+s.Web.Err.Error())
	}
	if s.Video.Failed() {
		warnings = append(warnings, "video links unavailable: "+s.Video.Err.Error())
	}
	return warnings
}

// QARecord is one answered turn in the session log.
type QARecord struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Links    LinkSet   `json:"links"`
	AskedAt  time.Time `json:"asked_at"`
}

// Turn is what a question returns to the surface: the new record plus the
// earlier records, newest first.
type Turn struct {
	Record   QARecord   `json:"record"`
	Previous []QARecord `json:"previous"`
	Sources  []Source   `json:"sources"`
}

// Source is a retrieved chunk with its similarity to the question.
type Source struct {
	ChunkIndex int     `json:"chunk_index"`
	Similarity float32 `json:"similarity"`
	Preview    string  `json:"preview"`
}

// ProcessResult summarises one "process" action.
type ProcessResult struct {
	Files      int           `json:"files"`
	Pages      int           `json:"pages"`
	Characters int           `json:"characters"`
	Chunks     int           `json:"chunks"`
	Dimension  int           `json:"dimension"`
	Duration   time.Duration `json:"duration"`
}
