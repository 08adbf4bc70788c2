// Package catalog records successful variants against their assets and
// rebuilds asset/variant links from object names when records are missing.
package catalog

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/transcoder/internal/clock"
	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/encoder"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/dmitrijs2005/transcoder/internal/server/repositories/assets"
)

const maxFailureReason = 512

type Reconciler struct {
	repo           assets.Repository
	clock          clock.Clock
	logger         logging.Logger
	recordFailures bool
}

// NewReconciler builds a Reconciler over repo. With recordFailures set,
// RecordFailure stores the last failed transcode on the asset; otherwise
// failures leave no trace in the catalog.
func NewReconciler(repo assets.Repository, clk clock.Clock, logger logging.Logger, recordFailures bool) *Reconciler {
	return &Reconciler{
		repo:           repo,
		clock:          clk,
		logger:         logger.With("module", "catalog"),
		recordFailures: recordFailures,
	}
}

// RecordVariant appends rec.Variant to the asset's variant list. Appending a
// name that is already listed only refreshes the transcode time. rec.At
// defaults to the current time.
func (r *Reconciler) RecordVariant(ctx context.Context, rec models.VariantRecord) error {
	if rec.At.IsZero() {
		rec.At = r.clock.Now()
	}
	if err := r.repo.AppendVariant(ctx, rec); err != nil {
		return err
	}
	r.logger.Debug(ctx, "variant recorded", "owner", rec.OwnerID, "filename", rec.Filename, "variant", rec.Variant)
	return nil
}

// RecordFailure stores a failed transcode when failure recording is on. An
// asset without a record is skipped.
func (r *Reconciler) RecordFailure(ctx context.Context, ownerID, filename, variant string, cause error) error {
	if !r.recordFailures || cause == nil {
		return nil
	}

	reason := cause.Error()
	var ef *encoder.EncodeFailure
	if errors.As(cause, &ef) && ef.Diagnostic != "" {
		reason = ef.Diagnostic
	}
	if len(reason) > maxFailureReason {
		reason = reason[len(reason)-maxFailureReason:]
	}

	err := r.repo.SetFailure(ctx, ownerID, filename, models.Failure{
		Variant: variant,
		Reason:  reason,
		At:      r.clock.Now(),
	})
	if errors.Is(err, common.ErrorNotFound) {
		r.logger.Debug(ctx, "failure not recorded, asset has no record", "owner", ownerID, "filename", filename)
		return nil
	}
	return err
}

// RecordsFailures reports whether failures are recorded.
func (r *Reconciler) RecordsFailures() bool { return r.recordFailures }
