package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
)

var knownStatuses = map[string]Status{
	"pending":   StatusPending,
	"shipped":   StatusShipped,
	"delivered": StatusDelivered,
}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// ParseStatus is case-insensitive and returns the canonical spelling.
func ParseStatus(raw string) (Status, error) {
	s, ok := knownStatuses[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidRequest, raw)
	}
	return s, nil
}
