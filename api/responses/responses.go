// Package responses writes the JSON envelopes every handler returns.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err under its code's status. Untyped errors become
// INTERNAL_ERROR. An error carrying a retry delay is retryable whatever its code.
// Server-side failures are logged at error level and client
// mistakes at warn, both with the flattened error chain.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	code := typed.Code()
	msg, details := typed.Public()

	if wait := typed.RetryAfter(); wait > 0 {
		seconds := max(int(wait.Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		if details == nil {
			details = map[string]any{"retry_after_seconds": seconds}
		}
	}

	ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
	if code.Status() >= http.StatusInternalServerError {
		logg.Error(ctx, "request failed", err)
	} else {
		logg.Warn(ctx, "request rejected")
	}

	writeJSON(w, code.Status(), types.ErrorEnvelope{Error: types.APIError{
		Code:      string(code),
		Message:   msg,
		Retryable: code.Retryable() || typed.RetryAfter() > 0,
		Details:   details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
