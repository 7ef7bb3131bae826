package cache

import "strings"

// Status represents the deployment lifecycle of a single asset index.
type Status string

const (
	StatusPending          Status = "pending"
	StatusImageUploaded    Status = "image_uploaded"
	StatusMetadataUploaded Status = "metadata_uploaded"
	StatusWritten          Status = "written"
	StatusConfirmed        Status = "confirmed"
)

var statusRank = map[Status]int{
	StatusPending:          0,
	StatusImageUploaded:    1,
	StatusMetadataUploaded: 2,
	StatusWritten:          3,
	StatusConfirmed:        4,
}

var allStatuses = []Status{
	StatusPending,
	StatusImageUploaded,
	StatusMetadataUploaded,
	StatusWritten,
	StatusConfirmed,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusRank[normalized]
	return normalized, ok
}

// Rank returns the monotonic ordering position of a status.
func (s Status) Rank() int {
	return statusRank[s]
}

// AtLeast reports whether s has reached the given status.
func (s Status) AtLeast(other Status) bool {
	return statusRank[s] >= statusRank[other]
}

type rollback struct {
	from Status
	to   Status
}

// allowedRollbacks enumerates the only sanctioned backward transitions:
// the reconciler demoting an item whose on-chain write was lost.
var allowedRollbacks = []rollback{
	{from: StatusWritten, to: StatusMetadataUploaded},
	{from: StatusConfirmed, to: StatusMetadataUploaded},
}

func rollbackAllowed(from, to Status) bool {
	for _, r := range allowedRollbacks {
		if r.from == from && r.to == to {
			return true
		}
	}
	return false
}
