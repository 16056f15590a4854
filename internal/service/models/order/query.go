package order

import "time"

// QueryStaleModel selects orders stuck in a status since before a cutoff.
// Orders republished at or after RepublishedBefore are skipped; the zero value disables that filter.
type QueryStaleModel struct {
	Status            Status
	CreatedBefore     time.Time
	RepublishedBefore time.Time
	Limit             int
}
