package apierr

import (
	"errors"
	"net/http"
)

const (
	msgValidation  = "Validation Error"
	msgDuplicate   = "Duplicate field value entered"
	msgMalformedID = "Invalid resource ID"
	msgEmptyQuery  = "Search query is required"
	msgInternal    = "Internal Server Error"
)

// Body is the JSON error shape returned to HTTP callers.
type Body struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
	Stack   string   `json:"stack,omitempty"`
}

type violationCarrier interface {
	Violations() []string
}

type statusCarrier interface {
	StatusCode() int
}

// Normalize maps err onto an HTTP status and body. Categories are detected
// structurally so any store adapter can participate. Storage detail only
// reaches the caller when debug is set.
func Normalize(err error, debug bool) (int, Body) {
	status, body := classify(err, debug)
	if debug && err != nil {
		body.Stack = err.Error()
	}
	return status, body
}

func classify(err error, debug bool) (int, Body) {
	if err == nil {
		return http.StatusInternalServerError, Body{Error: msgInternal}
	}

	var vc violationCarrier
	if errors.As(err, &vc) {
		details := vc.Violations()
		if details == nil {
			details = []string{}
		}
		return http.StatusBadRequest, Body{Error: msgValidation, Details: details}
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusBadRequest, Body{Error: msgDuplicate}
	}
	if errors.Is(err, ErrMalformedID) {
		return http.StatusBadRequest, Body{Error: msgMalformedID}
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		entity := nf.Entity
		if entity == "" {
			entity = "Resource"
		}
		return http.StatusNotFound, Body{Error: entity + " not found"}
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound, Body{Error: "Resource not found"}
	}
	if errors.Is(err, ErrEmptyQuery) {
		return http.StatusBadRequest, Body{Error: msgEmptyQuery}
	}

	var sc statusCarrier
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 500 {
			msg := err.Error()
			if e, ok := sc.(error); ok {
				msg = e.Error()
			}
			return code, Body{Error: msg}
		} else if code >= 500 {
			return code, Body{Error: internalMessage(err, debug)}
		}
	}
	return http.StatusInternalServerError, Body{Error: internalMessage(err, debug)}
}

func internalMessage(err error, debug bool) string {
	if debug && err.Error() != "" {
		return err.Error()
	}
	return msgInternal
}
