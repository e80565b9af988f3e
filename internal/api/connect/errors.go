package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/karaoke-hub/internal/app/hub"
	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/infra/youtube"
)

var errMissingField = errors.New("missing required field")

// toConnectError maps domain errors to Connect status codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var code connect.Code
	switch {
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, hub.ErrConnectionNotFound),
		errors.Is(err, youtube.ErrVideoNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, store.ErrSessionInactive):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, youtube.ErrRateLimited):
		code = connect.CodeResourceExhausted
	case errors.Is(err, youtube.ErrInvalidVideoID), errors.Is(err, errMissingField):
		code = connect.CodeInvalidArgument
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}

func requireField(name, value string) error {
	if value == "" {
		return errors.Wrapf(errMissingField, "%s", name)
	}
	return nil
}
