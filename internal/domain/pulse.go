package domain

import "time"

// RawPulse is one element of the OTX "results" array, decoded as-is.
// Numbers are kept as json.Number.
type RawPulse map[string]any

// Pulse is the normalized document persisted into the sink.
type Pulse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	AuthorName  string     `json:"author_name"`
	Tags        []string   `json:"tags"`     // set, sorted
	Created     *time.Time `json:"created"`  // nil when unknown
	Modified    *time.Time `json:"modified"` // nil when unknown
	References  []string   `json:"references"`
}

// Page is one page of source records plus the cursor to the next one.
type Page struct {
	Results []RawPulse
	Next    string // empty when there are no more pages
	Count   int    // total reported by the source, 0 if absent
}
