package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"legalrag/internal/indexer"
	"legalrag/internal/rag"
	"legalrag/internal/storage"
)

// FileIngester ingests documents from disk.
type FileIngester interface {
	IngestFile(ctx context.Context, path string) (indexer.Result, error)
	IngestAll(ctx context.Context, root string) (*indexer.Stats, error)
}

// SourceLister lists the recorded ingestion history.
type SourceLister interface {
	List(ctx context.Context) ([]storage.SourceRecord, error)
}

// Services are the components the commands run against.
type Services struct {
	Retriever rag.Retriever
	Ingester  FileIngester
	Sources   SourceLister
	// SourceDir is ingested when ingest is given no paths.
	SourceDir string
	Close     func() error
}

// LoadOptions carry command-line overrides of the configuration.
type LoadOptions struct {
	// SkipUnchanged skips files whose content is unchanged since their last ingestion.
	SkipUnchanged bool
}

// Loader builds the services on first use, so help and argument errors
// never touch the stores or the embedding backend.
type Loader func(ctx context.Context, opts LoadOptions) (*Services, error)

var loadServices Loader

var rootCmd = &cobra.Command{
	Use:   "legalctl",
	Short: "Ingest and search legal documents",
	Long: `legalctl segments legal documents into articles, indexes them for
semantic search and retrieves the articles relevant to a question.`,
	SilenceUsage: true,
}

// Execute runs the command line with services built by load.
func Execute(ctx context.Context, load Loader) error {
	loadServices = load
	return rootCmd.ExecuteContext(ctx)
}

// withServices loads the services, runs fn and closes them.
func withServices(cmd *cobra.Command, opts LoadOptions, fn func(ctx context.Context, s *Services) error) (err error) {
	if loadServices == nil {
		return errors.New("services not configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := loadServices(ctx, opts)
	if err != nil {
		return err
	}
	if s.Close != nil {
		defer func() {
			err = errors.Join(err, s.Close())
		}()
	}
	return fn(ctx, s)
}
