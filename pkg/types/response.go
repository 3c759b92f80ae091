// Package types holds the JSON envelopes shared by the HTTP API and the client SDK.
package types

// SuccessEnvelope wraps every 2xx body as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps every error body as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError carries a stable machine code, a caller-safe message and, for codes
// that allow it, structured details such as per-field validation messages.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Page is one slice of a cursor paginated listing. An empty NextCursor marks the
// last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NewPage builds a page whose Items always encode as an array, never null.
func NewPage[T any](items []T, next string) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, NextCursor: next}
}

// Last reports whether no further page follows.
func (p Page[T]) Last() bool {
	return p.NextCursor == ""
}
