package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	"github.com/angelmondragon/packfinderz-finance/internal/reconciliation"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

type reconciliationService interface {
	Run(ctx context.Context) (*reconciliation.View, error)
}

// ReconciliationPanel runs the matching engine. A stale view is still a 200 and carries
// Retry-After so the console can poll again.
func ReconciliationPanel(svc reconciliationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Run(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if view.Stale && view.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(view.RetryAfterSeconds))
		}
		responses.WriteSuccess(w, view)
	}
}
