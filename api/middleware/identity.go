package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

const (
	OperatorIDHeader = "X-Operator-Id"
	VendorIDHeader   = "X-Vendor-Id"
)

var identityHeaders = []struct {
	header string
	role   role
}{
	{OperatorIDHeader, roleOperator},
	{VendorIDHeader, roleVendor},
}

// Identity copies the gateway identity headers into the request context and the
// request logger. The gateway authenticates callers; a header that is not a UUID
// is still rejected here.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, h := range identityHeaders {
				raw := strings.TrimSpace(r.Header.Get(h.header))
				if raw == "" {
					continue
				}
				if id, err := uuid.Parse(raw); err != nil || id == uuid.Nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeUnauthorized, "invalid %s identity", h.role))
					return
				}
				ctx = withIdentity(ctx, h.role, raw)
				ctx = logg.WithField(ctx, string(h.role)+"_id", raw)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOperator rejects requests that carry no operator identity.
func RequireOperator(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireIdentity(logg, roleOperator)
}

// RequireVendor rejects requests that carry no vendor identity.
func RequireVendor(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireIdentity(logg, roleVendor)
}

func requireIdentity(logg *logger.Logger, r role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if identityFrom(req.Context(), r) == "" {
				responses.WriteError(req.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeUnauthorized, "%s identity required", r))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
