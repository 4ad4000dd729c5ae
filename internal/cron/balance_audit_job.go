package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-finance/internal/ledger"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

type balanceAuditLedger interface {
	VendorsWithActivity(ctx context.Context) ([]uuid.UUID, error)
	Balance(ctx context.Context, vendorID uuid.UUID) (*ledger.Snapshot, error)
	UnrecordedWithdrawals(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutRequest, error)
}

type anomalyRecorder interface {
	IncBalanceAnomaly()
}

// BalanceAuditJobParams configure the balance audit.
type BalanceAuditJobParams struct {
	Logger  *logger.Logger
	Ledger  balanceAuditLedger
	Metrics anomalyRecorder
}

// AuditReport summarises one audit pass.
type AuditReport struct {
	Vendors      int
	Anomalies    int
	Unconserved  int
	MissingDebit int
}

// NewBalanceAuditJob recomputes every active vendor's balance and reports negative
// available balances, conservation breaks and completed payouts with no withdrawal event.
// Findings are reported, never corrected.
func NewBalanceAuditJob(params BalanceAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &balanceAuditJob{logg: params.Logger, ledger: params.Ledger, metrics: params.Metrics}, nil
}

type balanceAuditJob struct {
	logg    *logger.Logger
	ledger  balanceAuditLedger
	metrics anomalyRecorder
	last    AuditReport
}

func (j *balanceAuditJob) Name() string { return "balance-audit" }

// Run only fails when balances could not be read. Findings are logged and counted.
func (j *balanceAuditJob) Run(ctx context.Context) error {
	vendors, err := j.ledger.VendorsWithActivity(ctx)
	if err != nil {
		return fmt.Errorf("list vendors: %w", err)
	}
	report := AuditReport{Vendors: len(vendors)}
	var errs error
	for _, vendorID := range vendors {
		vendorCtx := j.logg.WithVendorID(ctx, vendorID.String())
		snap, err := j.ledger.Balance(vendorCtx, vendorID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("balance %s: %w", vendorID, err))
			continue
		}
		snapCtx := j.logg.WithFields(vendorCtx, map[string]any{
			"available_cents": snap.AvailableCents,
			"pending_cents":   snap.PendingCents,
			"earned_cents":    snap.TotalEarnedCents,
			"withdrawn_cents": snap.TotalWithdrawnCents,
		})
		if snap.Anomaly {
			report.Anomalies++
			j.recordAnomaly()
			j.logg.Warn(j.logg.WithField(snapCtx, "reason", snap.AnomalyReason), "vendor balance anomaly")
		}
		if !snap.Conserved() {
			report.Unconserved++
			j.recordAnomaly()
			j.logg.Warn(snapCtx, "vendor balance does not conserve")
		}
		missing, err := j.ledger.UnrecordedWithdrawals(vendorCtx, vendorID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("withdrawals %s: %w", vendorID, err))
			continue
		}
		for _, payout := range missing {
			report.MissingDebit++
			j.recordAnomaly()
			j.logg.Warn(j.logg.WithFields(vendorCtx, map[string]any{
				"payout_id":    payout.ID.String(),
				"reference":    payout.Reference,
				"amount_cents": payout.AmountCents,
			}), "completed payout has no withdrawal event")
		}
	}
	j.last = report
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"vendors":        report.Vendors,
		"anomalies":      report.Anomalies,
		"unconserved":    report.Unconserved,
		"missing_debits": report.MissingDebit,
	}), "balance audit complete")
	return errs
}

func (j *balanceAuditJob) recordAnomaly() {
	if j.metrics == nil {
		return
	}
	j.metrics.IncBalanceAnomaly()
}
