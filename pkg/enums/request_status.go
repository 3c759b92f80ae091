package enums

import "fmt"

// RequestStatus tracks a custom request through the sales pipeline.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusContacted RequestStatus = "contacted"
	RequestStatusClosed    RequestStatus = "closed"
	RequestStatusCancelled RequestStatus = "cancelled"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusContacted,
	RequestStatusClosed,
	RequestStatusCancelled,
}

// String implements fmt.Stringer.
func (s RequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RequestStatus.
func (s RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusClosed || s == RequestStatusCancelled
}

// ParseRequestStatus converts raw input into a RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}
