package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/accounts"
	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/application/service"
	"github.com/garyjia/receipt-ledger/internal/config"
	"github.com/garyjia/receipt-ledger/internal/extraction"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/external/bedrock"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/external/openai"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/external/zoho"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/imaging"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/persistence/repository"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/storage"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/worker"
	"github.com/garyjia/receipt-ledger/pkg/database"
)

// DatabaseBundle holds the open database and its transaction manager
type DatabaseBundle struct {
	SqlDB          *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and applies the embedded migrations
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	db, err := database.Open(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideModelInvoker creates the vision model client selected by
// extraction.provider
func ProvideModelInvoker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.ModelInvoker, error) {
	switch cfg.Extraction.Provider {
	case "bedrock":
		client, err := bedrock.NewClient(ctx, bedrock.Config{
			Region:          cfg.Bedrock.Region,
			AccessKeyID:     cfg.Bedrock.AccessKeyID,
			SecretAccessKey: cfg.Bedrock.SecretAccessKey,
			ModelID:         cfg.Bedrock.ModelID,
			Timeout:         cfg.Bedrock.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create bedrock client: %w", err)
		}
		return client, nil
	case "openai":
		return openai.NewVisionClient(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Extraction.Provider)
	}
}

// ProvideExpenseSubmitter returns the Zoho Books client, or nil when the
// integration is disabled
func ProvideExpenseSubmitter(cfg config.ZohoConfig, logger *zap.Logger) port.ExpenseSubmitter {
	if !cfg.Enabled {
		logger.Info("Zoho Books integration disabled")
		return nil
	}
	return zoho.NewClient(zoho.Config{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		RefreshToken:      cfg.RefreshToken,
		OrganizationID:    cfg.OrganizationID,
		TokenURL:          cfg.TokenURL,
		APIDomain:         cfg.APIDomain,
		RequestsPerMinute: cfg.RequestsPerMin,
		Timeout:           cfg.Timeout,
	}, logger)
}

// ProvideStorage creates the receipt file storage
func ProvideStorage(cfg config.StorageConfig, logger *zap.Logger) port.FileStorage {
	return storage.NewLocalFileStorage(cfg.BaseDir, cfg.BaseURL, logger)
}

// ProvideExtractionConfig maps configuration onto the orchestrator settings,
// loading prompt overrides when a prompts file is configured
func ProvideExtractionConfig(cfg config.ExtractionConfig) (extraction.Config, error) {
	ext := extraction.DefaultConfig()
	ext.Retry = extraction.RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialRetryDelay,
		MinInterval:  cfg.MinRequestInterval,
	}
	if cfg.MaxTokens > 0 {
		ext.MaxTokens = cfg.MaxTokens
	}
	ext.Temperature = cfg.Temperature
	if cfg.MaxFileSize > 0 {
		ext.MaxFileSize = cfg.MaxFileSize
	}

	if cfg.PromptsPath != "" {
		prompts, err := extraction.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return extraction.Config{}, fmt.Errorf("failed to load prompts: %w", err)
		}
		ext.Prompts = &prompts
	}
	return ext, nil
}

// ProvidePreparer creates the document preparer from the image settings
func ProvidePreparer(cfg config.ImageConfig, logger *zap.Logger) port.DocumentPreparer {
	return imaging.NewPreparer(imaging.Options{
		MaxWidth:  cfg.MaxWidth,
		MaxHeight: cfg.MaxHeight,
		Quality:   cfg.Quality,
		Grayscale: cfg.Grayscale,
	}, logger)
}

// ServiceDeps holds dependencies required for creating services
type ServiceDeps struct {
	Config    *config.Config
	DB        *sqlite.DB
	Model     port.ModelInvoker
	Preparer  port.DocumentPreparer
	Storage   port.FileStorage
	Submitter port.ExpenseSubmitter
	Logger    *zap.Logger
}

// ProvideServices creates all application services
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Model == nil {
		return nil, fmt.Errorf("model invoker is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := NewLoggerAdapter(deps.Logger)

	accountService, err := service.NewAccountService(
		deps.Config.Ledger.Path,
		accounts.NewTreeCache(deps.Config.Ledger.CacheTTL),
		serviceLogger,
	)
	if err != nil {
		return nil, err
	}

	extCfg, err := ProvideExtractionConfig(deps.Config.Extraction)
	if err != nil {
		return nil, err
	}
	orchestrator := extraction.NewOrchestrator(deps.Model, deps.Preparer, extCfg, deps.Logger)

	receiptRepo := repository.NewReceiptRepository(deps.DB, deps.Logger)

	return &ServiceBundle{
		Accounts: accountService,
		Receipts: service.NewReceiptService(
			orchestrator,
			receiptRepo,
			deps.Storage,
			accountService,
			deps.Submitter,
			serviceLogger,
		),
		Export: service.NewExportService(receiptRepo, serviceLogger),
	}, nil
}

// ProvideWorkers registers the background workers
func ProvideWorkers(cfg config.LedgerConfig, accounts worker.Reloader, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger)
	if cfg.ReloadInterval > 0 {
		manager.Register(worker.NewLedgerWatcher(cfg.Path, cfg.ReloadInterval, accounts, logger))
	}
	return manager
}
