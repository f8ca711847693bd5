package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/fabzclean/fabzclean-backend/internal/ledger"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/metrics"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
)

const defaultIntegrityBatch = 500

type customerSource interface {
	ListIDs(ctx context.Context, afterID *uuid.UUID, limit int) ([]uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

type ledgerSource interface {
	ListForReplay(ctx context.Context, customerID uuid.UUID) ([]models.CreditTransaction, error)
}

// LedgerIntegrityJobParams configure the integrity sweep.
type LedgerIntegrityJobParams struct {
	Logger    *logger.Logger
	Customers customerSource
	Ledger    ledgerSource
	Metrics   *metrics.LedgerMetrics
	BatchSize int
}

// NewLedgerIntegrityJob replays every customer's ledger and reports rows
// whose stored balance disagrees with the transaction history. It never
// repairs anything.
func NewLedgerIntegrityJob(params LedgerIntegrityJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultIntegrityBatch
	}
	return &ledgerIntegrityJob{
		logg:      params.Logger,
		customers: params.Customers,
		ledger:    params.Ledger,
		metrics:   params.Metrics,
		batch:     batch,
	}, nil
}

type ledgerIntegrityJob struct {
	logg      *logger.Logger
	customers customerSource
	ledger    ledgerSource
	metrics   *metrics.LedgerMetrics
	batch     int
}

// IntegrityResult summarises one sweep.
type IntegrityResult struct {
	Checked    int
	Mismatches []ledger.Report
}

func (j *ledgerIntegrityJob) Name() string { return "ledger-integrity" }

func (j *ledgerIntegrityJob) Run(ctx context.Context) error {
	result, err := j.sweep(ctx)
	j.metrics.SetIntegrityMismatches(len(result.Mismatches))
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"customers_checked": result.Checked,
		"mismatches":        len(result.Mismatches),
	})
	if len(result.Mismatches) > 0 {
		j.logg.Warn(logCtx, "ledger integrity sweep found mismatches")
	} else {
		j.logg.Info(logCtx, "ledger integrity sweep clean")
	}
	return err
}

// sweep walks customers in id order. A failure to load one customer is
// collected and the sweep moves on.
func (j *ledgerIntegrityJob) sweep(ctx context.Context) (IntegrityResult, error) {
	var (
		result IntegrityResult
		errs   error
		after  *uuid.UUID
	)
	for {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		ids, err := j.customers.ListIDs(ctx, after, j.batch)
		if err != nil {
			return result, multierr.Append(errs, fmt.Errorf("list customers: %w", err))
		}
		for _, id := range ids {
			report, err := j.check(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("customer %s: %w", id, err))
				continue
			}
			result.Checked++
			if !report.Consistent {
				result.Mismatches = append(result.Mismatches, report)
				j.logMismatch(ctx, report)
			}
		}
		if len(ids) < j.batch {
			return result, errs
		}
		last := ids[len(ids)-1]
		after = &last
	}
}

// check replays a customer, and on a mismatch replays again so a write that
// landed between the two reads is not reported.
func (j *ledgerIntegrityJob) check(ctx context.Context, id uuid.UUID) (ledger.Report, error) {
	var report ledger.Report
	for attempt := 0; attempt < 2; attempt++ {
		customer, err := j.customers.FindByID(ctx, id)
		if err != nil {
			return ledger.Report{}, err
		}
		entries, err := j.ledger.ListForReplay(ctx, id)
		if err != nil {
			return ledger.Report{}, err
		}
		report = ledger.Replay(*customer, entries)
		if report.Consistent {
			return report, nil
		}
	}
	return report, nil
}

func (j *ledgerIntegrityJob) logMismatch(ctx context.Context, report ledger.Report) {
	fields := map[string]any{
		"event":            "ledger.integrity_mismatch",
		"customer_id":      report.CustomerID.String(),
		"stored_balance":   money.String(report.StoredBalance),
		"replayed_balance": money.String(report.ReplayedBalance),
		"entries":          report.Entries,
		"problem":          report.Problem,
	}
	if report.BrokenEntryID != nil {
		fields["broken_entry_id"] = report.BrokenEntryID.String()
	}
	j.logg.Warn(j.logg.WithFields(ctx, fields), "ledger balance does not match its history")
}
