package sync

import (
	"errors"
	"net/http"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/transport"
)

// Kind is the caller-facing category of an engine error.
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindInvalid
	KindUnavailable
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not-found"
	case KindInvalid:
		return "invalid"
	case KindUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// HTTPStatus returns the status code a request boundary reports for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindOK:
		return http.StatusOK
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Classify maps an engine error onto a Kind. Not-found is kept distinct
// from failure so callers can decide whether a retry makes sense.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, model.ErrNotFound):
		return KindNotFound
	case errors.Is(err, model.ErrInvalidArgument):
		return KindInvalid
	case transport.IsConnectionError(err),
		transport.IsAuthError(err),
		transport.IsFolderNotFound(err):
		return KindUnavailable
	default:
		return KindFailed
	}
}
