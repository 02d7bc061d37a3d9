package services

import (
	"context"
	"fmt"

	"listings-ingest/models"
	"listings-ingest/source"
	"listings-ingest/storage"
	"listings-ingest/utils"
)

// IngestOptions controls the batch-level error policy.
type IngestOptions struct {
	// SkipMalformed logs and skips rows that fail normalization instead
	// of aborting the run before anything is written.
	SkipMalformed bool
	// Rejects receives every skipped row. Optional.
	Rejects storage.RejectSink
}

// Ingestor runs one CSV batch through normalize → plan → write.
type Ingestor struct {
	normalizer *Normalizer
	planner    *Planner
	ids        storage.IDSource
	writer     storage.PlanWriter
	opts       IngestOptions
	logger     *utils.Logger
}

// NewIngestor wires the pipeline stages together.
func NewIngestor(planner *Planner, ids storage.IDSource, writer storage.PlanWriter, opts IngestOptions, logger *utils.Logger) *Ingestor {
	return &Ingestor{
		normalizer: NewNormalizer(logger),
		planner:    planner,
		ids:        ids,
		writer:     writer,
		opts:       opts,
		logger:     logger,
	}
}

// Run ingests one decoded CSV. The returned report is populated as far as
// the run got, including on error.
func (in *Ingestor) Run(ctx context.Context, input *source.ReadResult) (*models.IngestReport, error) {
	report := &models.IngestReport{RowsRead: len(input.Rows) + len(input.Errors)}

	for _, rowErr := range input.Errors {
		mre := &MalformedRecordError{Line: rowErr.Line, Field: "*", Err: rowErr.Err}
		if !in.opts.SkipMalformed {
			return report, mre
		}
		in.logger.Warn("[ingest] skipping undecodable line %d: %v", rowErr.Line, rowErr.Err)
		if err := in.reject(mre); err != nil {
			return report, err
		}
		report.Malformed++
	}

	listings, rejected, err := in.normalizer.NormalizeAll(input.Rows, in.opts.SkipMalformed)
	if err != nil {
		return report, err
	}
	for _, mre := range rejected {
		if err := in.reject(mre); err != nil {
			return report, err
		}
	}
	report.Malformed += len(rejected)
	report.Normalized = len(listings)

	if len(listings) == 0 {
		in.logger.Warn("[ingest] no valid listings in batch, nothing to write")
		return report, nil
	}

	existing, err := in.ids.ExistingIDs(ctx)
	if err != nil {
		return report, err
	}
	in.logger.Debug("[ingest] %d identifiers already stored", existing.Size())

	plan := in.planner.Plan(listings, existing)
	report.Planned = plan.Len()
	report.Duplicates = plan.Stats.Duplicates
	report.ExistingSkipped = plan.Stats.Existing
	report.New = plan.Stats.New
	report.Updates = plan.Stats.Updates

	res, err := in.writer.Apply(ctx, plan)
	report.Committed = res.Committed
	report.SubBatches = res.SubBatches
	if err != nil {
		return report, err
	}

	in.logger.Info("[ingest] committed %d/%d operations in %d sub-batches",
		report.Committed, report.Planned, report.SubBatches)
	return report, nil
}

func (in *Ingestor) reject(mre *MalformedRecordError) error {
	if in.opts.Rejects == nil {
		return nil
	}
	err := in.opts.Rejects.Reject(storage.Rejection{
		Line:   mre.Line,
		Key:    mre.Row.Key(),
		Field:  mre.Field,
		Reason: mre.Err.Error(),
		Raw:    mre.Row.Fields,
	})
	if err != nil {
		return fmt.Errorf("ingest: record rejected line %d: %w", mre.Line, err)
	}
	return nil
}
