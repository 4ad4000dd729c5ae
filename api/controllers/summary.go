package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	"github.com/angelmondragon/packfinderz-finance/internal/summary"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

type summaryService interface {
	Get(ctx context.Context) (*summary.Summary, error)
}

// FinanceSummary serves the dashboard rollups.
func FinanceSummary(svc summaryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Get(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
