// Package types holds the JSON shapes shared by every HTTP response.
package types

// Envelope wraps a successful payload as {"data": ...}.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// ErrorBody is the public half of a failed request. RequestID repeats the
// X-Request-Id response header so a client can quote it.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorEnvelope wraps a failure as {"error": {...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
