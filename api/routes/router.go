package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-finance/api/controllers"
	"github.com/angelmondragon/packfinderz-finance/api/middleware"
	"github.com/angelmondragon/packfinderz-finance/internal/ledger"
	"github.com/angelmondragon/packfinderz-finance/internal/payouts"
	"github.com/angelmondragon/packfinderz-finance/internal/reconciliation"
	"github.com/angelmondragon/packfinderz-finance/internal/refunds"
	"github.com/angelmondragon/packfinderz-finance/internal/settlements"
	"github.com/angelmondragon/packfinderz-finance/internal/summary"
	"github.com/angelmondragon/packfinderz-finance/pkg/config"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/metrics"
)

// Services groups the domain services behind the HTTP surface.
type Services struct {
	Ledger         ledger.Service
	Refunds        refunds.Service
	Settlements    settlements.Service
	Payouts        payouts.Service
	PayoutMethods  payouts.MethodService
	Summary        summary.Service
	Reconciliation reconciliation.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	pingers map[string]controllers.Pinger,
	idempotencyStore middleware.IdempotencyStore,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))

		// Replays for state changes; money-moving routes keep theirs for a week.
		once := middleware.Idempotent(idempotencyStore, middleware.StandardReplayWindow, logg)
		money := middleware.Idempotent(idempotencyStore, middleware.MoneyReplayWindow, logg)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOperator(logg))

			r.Get("/finance/summary", controllers.FinanceSummary(svc.Summary, logg))
			r.Get("/reconciliation", controllers.ReconciliationPanel(svc.Reconciliation, logg))

			r.Route("/refunds", func(r chi.Router) {
				r.Get("/", controllers.RefundsList(svc.Refunds, logg))
				r.With(money).Post("/approve-bulk", controllers.RefundApproveBulk(svc.Refunds, logg))
				r.With(once).Post("/{refundId}/review", controllers.RefundReview(svc.Refunds, logg))
				r.With(once).Post("/{refundId}/mark-approved", controllers.RefundMarkApproved(svc.Refunds, logg))
				r.With(money).Post("/{refundId}/approve", controllers.RefundApprove(svc.Refunds, logg))
				r.With(once).Post("/{refundId}/reject", controllers.RefundReject(svc.Refunds, logg))
			})

			r.Route("/settlements", func(r chi.Router) {
				r.Post("/", controllers.SettlementIngest(svc.Settlements, logg))
				r.Post("/stripe", controllers.SettlementIngestStripe(svc.Settlements, logg))
				r.Get("/in-flight", controllers.SettlementsInFlight(svc.Settlements, logg))
			})

			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", controllers.PayoutHistory(svc.Payouts, logg))
				r.With(money).Post("/{payoutId}/processing", controllers.PayoutMarkProcessing(svc.Payouts, logg))
				r.With(money).Post("/{payoutId}/complete", controllers.PayoutMarkCompleted(svc.Payouts, logg))
				r.With(money).Post("/{payoutId}/fail", controllers.PayoutMarkFailed(svc.Payouts, logg))
			})
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireVendor(logg))

			r.Get("/balance", controllers.VendorBalance(svc.Ledger, cfg.Finance.Currency, logg))
			r.Route("/payout-methods", func(r chi.Router) {
				r.Get("/", controllers.VendorPayoutMethods(svc.PayoutMethods, logg))
				r.With(once).Post("/", controllers.VendorAddPayoutMethod(svc.PayoutMethods, logg))
				r.Delete("/{methodId}", controllers.VendorRemovePayoutMethod(svc.PayoutMethods, logg))
				r.With(once).Post("/{methodId}/default", controllers.VendorSetDefaultPayoutMethod(svc.PayoutMethods, logg))
			})
			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", controllers.VendorPayoutHistory(svc.Payouts, logg))
				r.With(money).Post("/", controllers.VendorRequestPayout(svc.Payouts, logg))
				r.With(money).Post("/{payoutId}/cancel", controllers.VendorCancelPayout(svc.Payouts, logg))
			})
		})
	})

	return r
}
