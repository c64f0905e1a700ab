package xodto

// Error codes returned in HTTP error bodies.
const (
	CodeRejected     = "REJECTED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeNotFound     = "NOT_FOUND"
	CodeInconsistent = "INTERNAL_INCONSISTENCY"
	CodeInternal     = "INTERNAL"
	CodeBadRequest   = "BAD_REQUEST"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "xo service error"
}

type ErrorResponse struct {
	Error DomainError `json:"error"`
}
