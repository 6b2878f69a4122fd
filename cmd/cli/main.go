package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/dapfinance/internal/ai"
	"github.com/dvloznov/dapfinance/internal/config"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/gcsuploader"
	"github.com/dvloznov/dapfinance/internal/infra"
	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/dvloznov/dapfinance/internal/notionsync"
	"github.com/dvloznov/dapfinance/internal/pipeline"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/dvloznov/dapfinance/internal/wise"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogFormat == "json"})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport(cfg, log)
	case "categorize":
		runCategorize(cfg, log)
	case "sync-wise":
		runSyncWise(cfg, log)
	case "sync-notion":
		runSyncNotion(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("dapfinance CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import       Import a bank CSV from a local file or gs:// URI")
	fmt.Println("  categorize   Ask the model to categorize one transaction")
	fmt.Println("  sync-wise    Overwrite Wise account balances from the Wise API")
	fmt.Println("  sync-notion  Mirror transactions (and accounts) into Notion")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func openRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) store.Repository {
	repo, err := infra.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
	}
	return repo
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

func runImport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	bank := fs.String("bank", "", "Bank format (boa, chase, fidelity)")
	filePath := fs.String("file", "", "Path to a local CSV file")
	gcsURI := fs.String("gcs-uri", "", "gs:// URI of the CSV file")
	accountID := fs.String("account", "", "Account ID to attach the transactions to")
	fs.Parse(os.Args[2:])

	if *bank == "" || (*filePath == "") == (*gcsURI == "") {
		log.Fatal().Msg("Usage: cli import -bank NAME (-file PATH | -gcs-uri gs://BUCKET/OBJECT) [-account ID]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := openRepository(ctx, cfg, log)
	defer repo.Close()

	gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.CategorizeTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	opts := pipeline.ImportOptions{AccountID: *accountID}
	var result *pipeline.ImportResult

	if *gcsURI != "" {
		bucket, _, err := gcsuploader.ParseGCSURI(*gcsURI)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid GCS URI")
		}
		gcs, err := gcsuploader.NewService(ctx, bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer gcs.Close()

		log.Info().Str("bank", *bank).Str("gcs_uri", *gcsURI).Msg("Starting import")
		result, err = pipeline.NewIngestor(repo, gemini, gcs).ImportFromGCS(ctx, *bank, *gcsURI, opts)
		if err != nil {
			log.Fatal().Err(err).Msg("Import failed")
		}
	} else {
		data, err := os.ReadFile(*filePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read file")
		}

		log.Info().Str("bank", *bank).Str("file", *filePath).Msg("Starting import")
		result, err = pipeline.NewIngestor(repo, gemini, nil).ImportCSV(ctx, *bank, data, opts)
		if err != nil {
			log.Fatal().Err(err).Msg("Import failed")
		}
	}

	printJSON(result)
}

func runCategorize(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	description := fs.String("description", "", "Transaction description")
	amount := fs.String("amount", "0", "Signed amount (negative for spending)")
	currency := fs.String("currency", "USD", "Currency code")
	date := fs.String("date", time.Now().Format("2006-01-02"), "Transaction date (YYYY-MM-DD)")
	fs.Parse(os.Args[2:])

	if *description == "" {
		log.Fatal().Msg("Error: -description is required")
	}
	amt, err := pipeline.ParseAmount(*amount)
	if err != nil {
		log.Fatal().Err(err).Str("amount", *amount).Msg("Error: invalid -amount")
	}

	ctx := logger.WithContext(context.Background(), log)
	gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.CategorizeTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	result := gemini.Categorize(ctx, *description, amt, *currency, *date)
	printJSON(struct {
		ai.Categorization
		Fallback bool `json:"fallback"`
	}{result.Value, result.Fallback})
}

func runSyncWise(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sync-wise", flag.ExitOnError)
	token := fs.String("token", cfg.WiseAPIToken, "Wise API token (or set WISE_API_TOKEN)")
	profileID := fs.String("profile-id", cfg.WiseProfileID, "Wise profile ID (or set WISE_PROFILE_ID)")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := openRepository(ctx, cfg, log)
	defer repo.Close()

	client := wise.NewClient(cfg.WiseAPIBase, *token, *profileID)
	result, err := wise.SyncBalances(ctx, client, repo, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Wise sync failed")
	}

	printJSON(result)
}

func runSyncNotion(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	startDate := fs.String("start-date", "", "Start date in YYYY-MM-DD format")
	endDate := fs.String("end-date", "", "End date in YYYY-MM-DD format")
	status := fs.String("status", string(domain.StatusReviewed), "Transaction status to mirror (empty for all)")
	notionToken := fs.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN)")
	notionDBID := fs.String("notion-db-id", cfg.NotionDBID, "Notion transactions database ID (or set NOTION_DB_ID)")
	accountsDBID := fs.String("accounts-db-id", "", "Notion accounts database ID (optional)")
	prune := fs.Bool("prune", false, "Archive pages whose transaction is no longer selected")
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	fs.Parse(os.Args[2:])

	if *notionToken == "" {
		log.Fatal().Msg("Error: -notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: -notion-db-id is required")
	}

	for _, d := range []string{*startDate, *endDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			log.Fatal().Err(err).Str("date", d).Msg("Error: invalid date format, expected YYYY-MM-DD")
		}
	}
	if *startDate != "" && *endDate != "" && *endDate < *startDate {
		log.Fatal().Str("start_date", *startDate).Str("end_date", *endDate).Msg("Error: end-date must be after start-date")
	}

	st := domain.Status(*status)
	if st != "" && !st.Valid() {
		log.Fatal().Str("status", *status).Msg("Error: -status must be pending, reviewed or excluded")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := openRepository(ctx, cfg, log)
	defer repo.Close()

	notionClient := notionsync.NewNotionClient(*notionToken)

	result, err := notionsync.SyncTransactions(ctx, repo, notionClient, *notionDBID, notionsync.SyncOptions{
		Filter: store.TransactionFilter{Status: st, StartDate: *startDate, EndDate: *endDate},
		Prune:  *prune,
		DryRun: *dryRun,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Transaction sync failed")
	}
	printJSON(result)

	if *accountsDBID != "" {
		accResult, err := notionsync.SyncAccounts(ctx, repo, notionClient, *accountsDBID, *dryRun)
		if err != nil {
			log.Fatal().Err(err).Msg("Account sync failed")
		}
		printJSON(accResult)
	}
}
