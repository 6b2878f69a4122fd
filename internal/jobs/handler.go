package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/dvloznov/dapfinance/internal/pipeline"
)

// Importer runs a CSV import from object storage.
type Importer interface {
	ImportFromGCS(ctx context.Context, bank, gcsURI string, opts pipeline.ImportOptions) (*pipeline.ImportResult, error)
}

// NewImportHandler returns a JobHandler that imports the job's CSV and
// records the counts on the job. Unsupported banks and unreadable files are
// not retried.
func NewImportHandler(importer Importer) JobHandler {
	return func(ctx context.Context, job Job) error {
		importJob, ok := job.(*ImportJob)
		if !ok {
			return Permanent(fmt.Errorf("unexpected job type %s", job.GetType()))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", importJob.JobID).
			Str("bank", importJob.Bank).
			Str("gcs_uri", importJob.GCSURI).
			Logger()
		ctx = logger.WithContext(ctx, log)

		result, err := importer.ImportFromGCS(ctx, importJob.Bank, importJob.GCSURI, pipeline.ImportOptions{AccountID: importJob.AccountID})
		if err != nil {
			if errors.Is(err, pipeline.ErrUnsupportedBank) || errors.Is(err, pipeline.ErrUnrecognizedFormat) {
				return Permanent(err)
			}
			return err
		}

		importJob.Imported = result.Imported
		importJob.Skipped = result.Skipped
		importJob.Errors = result.Errors

		log.Info().
			Int("imported", result.Imported).
			Int("skipped", result.Skipped).
			Int("errors", len(result.Errors)).
			Msg("Import job finished")
		return nil
	}
}
