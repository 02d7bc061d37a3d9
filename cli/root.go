// Package cli wires configuration, the store session and the services
// into the listings-ingest commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"listings-ingest/config"
	"listings-ingest/models"
	"listings-ingest/services"
	"listings-ingest/source"
	"listings-ingest/storage"
	"listings-ingest/utils"
)

var (
	flagCSV         string
	flagStrategy    string
	flagOnMalformed string
	flagBatchSize   int
	flagRejects     string
	flagNoColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "listings-ingest",
	Short: "Ingest a unit listings CSV export and print the standard reports",
	Long: "Creates the listings table if needed, reconciles the CSV export against it,\n" +
		"prints the fixed reports and then asks for a unit name to search for.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAll,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStrategy, "strategy", "",
		"Reconciliation strategy: upsert or insert-if-absent (overrides INGEST_STRATEGY)")
	rootCmd.PersistentFlags().StringVar(&flagOnMalformed, "on-malformed", "",
		"Malformed row policy: skip or abort (overrides ON_MALFORMED)")
	rootCmd.PersistentFlags().IntVar(&flagBatchSize, "batch-size", 0,
		"Operations per committed sub-batch (overrides COMMIT_BATCH_SIZE)")
	rootCmd.PersistentFlags().StringVar(&flagRejects, "rejects", "",
		"CSV file receiving skipped rows (overrides REJECTS_PATH)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false,
		"Disable ANSI colours in report output")
	rootCmd.Flags().StringVar(&flagCSV, "csv", "",
		"CSV export to ingest (overrides CSV_INPUT_PATH)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(listCmd)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		utils.NewLogger().Error("%v", err)
	}
	return err
}

// app holds what every command needs for one run.
type app struct {
	cfg     *config.Config
	logger  *utils.Logger
	session *storage.Session
	printer *services.Printer
}

// setup loads configuration, applies flag overrides and opens the store.
// The caller must call close on every exit path.
func setup(ctx context.Context, out io.Writer) (*app, error) {
	cfg := config.Load()
	if flagStrategy != "" {
		cfg.Strategy = flagStrategy
	}
	if flagOnMalformed != "" {
		cfg.OnMalformed = flagOnMalformed
	}
	if flagBatchSize != 0 {
		cfg.CommitBatchSize = flagBatchSize
	}
	if flagRejects != "" {
		cfg.RejectsPath = flagRejects
	}
	if flagCSV != "" {
		cfg.CSVInputPath = flagCSV
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := utils.NewLogger()
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))

	retry := &utils.RetryConfig{
		MaxAttempts: cfg.ConnectRetries,
		BaseDelay:   cfg.ConnectBackoff(),
		Logger:      logger,
	}
	session, err := storage.Open(ctx, cfg.StoreDriver, cfg.DSN(), retry, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to %s store", cfg.StoreDriver)

	return &app{
		cfg:     cfg,
		logger:  logger,
		session: session,
		printer: services.NewPrinter(out, !flagNoColor),
	}, nil
}

func (a *app) close() {
	if err := a.session.Close(); err != nil {
		a.logger.Warn("closing store: %v", err)
	}
}

// ingest reads the configured CSV and reconciles it into the store.
func (a *app) ingest(ctx context.Context) error {
	a.logger.Info("Config: strategy %s | on-malformed %s | batch size %d",
		a.cfg.Strategy, a.cfg.OnMalformed, a.cfg.CommitBatchSize)

	input, err := source.ReadFile(a.cfg.CSVInputPath)
	if err != nil {
		return err
	}
	a.logger.Info("Read %d rows from %s", len(input.Rows)+len(input.Errors), a.cfg.CSVInputPath)

	opts := services.IngestOptions{SkipMalformed: a.cfg.SkipMalformed()}
	if a.cfg.RejectsPath != "" {
		rejects, err := storage.NewRejectsWriter(a.cfg.RejectsPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := rejects.Close(); err != nil {
				a.logger.Warn("closing rejects file: %v", err)
			}
			if n := rejects.Count(); n > 0 {
				a.logger.Warn("%d rejected rows written to %s", n, a.cfg.RejectsPath)
			}
		}()
		opts.Rejects = rejects
	}

	planner, err := services.NewPlanner(a.cfg.IngestStrategy(), a.logger)
	if err != nil {
		return err
	}
	writer := storage.NewWriter(a.session, a.cfg.CommitBatchSize, a.logger)
	ingestor := services.NewIngestor(planner, a.session, writer, opts, a.logger)

	report, err := ingestor.Run(ctx, input)
	report.StoredRows = a.storedRows(ctx)
	a.printer.PrintSummary(planner.Strategy(), report)
	return err
}

func (a *app) storedRows(ctx context.Context) int {
	n, err := a.session.Count(ctx)
	if err != nil {
		a.logger.Warn("counting stored listings: %v", err)
		return -1
	}
	return n
}

// list prints every stored listing in external_id order.
func (a *app) list(ctx context.Context) error {
	listings, err := a.session.FetchAll(ctx)
	if err != nil {
		return err
	}
	rows := make([]models.ListingSummary, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, l.Summary())
	}
	a.printer.PrintTable(models.ListingTable(fmt.Sprintf("Stored listings (%d)", len(rows)), rows))
	return nil
}

func (a *app) reports(ctx context.Context) error {
	engine := services.NewReportEngine(a.session, a.cfg.ReportConcurrency, a.logger)
	tables, err := engine.RunAll(ctx)
	if err != nil {
		return err
	}
	a.printer.PrintTables(tables)
	return nil
}

func (a *app) search(ctx context.Context, term string) error {
	engine := services.NewReportEngine(a.session, 1, a.logger)
	tbl, err := engine.Search(ctx, term)
	if err != nil {
		return err
	}
	a.printer.PrintTable(tbl)
	return nil
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ingest(ctx); err != nil {
		return err
	}
	if err := a.reports(ctx); err != nil {
		return err
	}

	term, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Enter unit name: ")
	if err != nil {
		return err
	}
	return a.search(ctx, term)
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read search term: %w", err)
	}
	return strings.TrimSpace(line), nil
}
