package order

import "fmt"

// Status is a step of the order lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

var rank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
}

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	_, ok := rank[s]

	return ok
}

// CanAdvance reports whether an order in status from may be moved to status to.
// Re-setting the same status is allowed; moving backward is not.
func CanAdvance(from, to Status) bool {
	f, ok := rank[from]
	if !ok {
		return false
	}
	t, ok := rank[to]
	if !ok {
		return false
	}

	return t >= f
}

// Predecessors returns every status from which to is reachable, to included.
func Predecessors(to Status) []Status {
	out := make([]Status, 0, len(rank))
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted} {
		if CanAdvance(s, to) {
			out = append(out, s)
		}
	}

	return out
}

// ParseStatus converts a stored value to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}

	return st, nil
}
