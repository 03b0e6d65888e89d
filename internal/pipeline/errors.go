package pipeline

import (
	"net/http"
)

// ErrorKind classifies a failed pipeline run
type ErrorKind int

const (
	// ClientError is malformed or invalid input.
	ClientError ErrorKind = iota
	// MethodNotAllowed is any method other than POST or OPTIONS.
	MethodNotAllowed
	// RateLimited means the client exhausted its window.
	RateLimited
	// Forbidden means verification or screening rejected the submission.
	Forbidden
	// UpstreamFailure means the tracker answered the write with a non-success status.
	UpstreamFailure
	// ConfigurationError means credentials are missing or unusable.
	ConfigurationError
	// TransportFailure is a network or decode fault talking to a collaborator.
	TransportFailure
)

// Status returns the HTTP status code reported for k
func (k ErrorKind) Status() int {
	switch k {
	case ClientError:
		return http.StatusBadRequest
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case RateLimited:
		return http.StatusTooManyRequests
	case Forbidden:
		return http.StatusForbidden
	case UpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k ErrorKind) String() string {
	switch k {
	case ClientError:
		return "client_error"
	case MethodNotAllowed:
		return "method_not_allowed"
	case RateLimited:
		return "rate_limited"
	case Forbidden:
		return "forbidden"
	case UpstreamFailure:
		return "upstream_failure"
	case ConfigurationError:
		return "configuration_error"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// ErrorResponse is the JSON body of every failed run
type ErrorResponse struct {
	Error string `json:"error"`
}
