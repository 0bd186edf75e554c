package orders

import "strings"

type Status string

// Order statuses
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
)

// lifecycle lists the statuses in their forward order.
var lifecycle = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered}

// ParseStatus accepts only the four lifecycle values, matched exactly.
func ParseStatus(s string) (Status, bool) {
	for _, st := range lifecycle {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Status) rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// CanAdvance reports whether to is reachable from from by moving forward
// along the lifecycle (staying put is allowed).
func CanAdvance(from, to Status) bool {
	f, t := from.rank(), to.rank()
	return f >= 0 && t >= f
}

// AllowedStatuses renders the allow-list for error messages.
func AllowedStatuses() string {
	names := make([]string, len(lifecycle))
	for i, st := range lifecycle {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}
