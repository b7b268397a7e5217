// -----------------------------------------------------------------------
// App - Dependency wiring for the webhook-to-pull-request pipeline
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/handlers"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/jobs"
	"github.com/ternarybob/faber/internal/queue"
	"github.com/ternarybob/faber/internal/services/audit"
	"github.com/ternarybob/faber/internal/services/container"
	"github.com/ternarybob/faber/internal/services/events"
	"github.com/ternarybob/faber/internal/services/github"
	"github.com/ternarybob/faber/internal/services/health"
	"github.com/ternarybob/faber/internal/services/llm"
	"github.com/ternarybob/faber/internal/services/planner"
	"github.com/ternarybob/faber/internal/services/retention"
	"github.com/ternarybob/faber/internal/services/scheduler"
	"github.com/ternarybob/faber/internal/services/webhook"
	"github.com/ternarybob/faber/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService interfaces.EventService
	AuditService interfaces.AuditService

	// Job pipeline (concrete types for the queue system)
	JobQueue   interfaces.JobQueue
	Dedup      *queue.DedupRegistry
	Cancels    *queue.CancelRegistry
	Dispatcher *queue.Dispatcher
	Processor  *queue.Processor

	// Planning and execution services
	LLMService       interfaces.LLMService
	PlannerService   interfaces.PlannerService
	GitHubService    interfaces.PlatformService
	ContainerService interfaces.ContainerService

	// Intake and operations services
	WebhookService   interfaces.WebhookService
	HealthService    interfaces.HealthService
	RetentionService interfaces.RetentionService
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	WSHandler        *handlers.WebSocketHandler
	WSWriter         *handlers.WebSocketWriter
	WebhookHandler   *handlers.WebhookHandler
	JobHandler       *handlers.JobHandler
	TaskHandler      *handlers.TaskHandler
	AuditHandler     *handlers.AuditHandler
	HealthHandler    *handlers.HealthHandler
	RetentionHandler *handlers.RetentionHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Event service and WebSocket hub are created early so every later
	// service can publish and stream
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.Logger)

	// Stream filtered logs to connected clients through arbor's channel
	app.WSWriter = handlers.NewWebSocketWriter(app.WSHandler, &cfg.WebSocket)
	if err := app.WSWriter.Start(); err != nil {
		return nil, fmt.Errorf("failed to start websocket log writer: %w", err)
	}
	app.Logger.SetChannel("websocket", app.WSWriter.GetChannel())

	// Mirror every published event into the debug log
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe logger to events")
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Start the worker pool AFTER all handlers are registered so no job
	// dequeues before its handler exists
	if err := app.Processor.Start(); err != nil {
		return nil, fmt.Errorf("failed to start job processor: %w", err)
	}
	app.Logger.Debug().Msg("Job processor started")

	// Log initialization summary
	logger.Info().
		Int("worker_count", cfg.BackgroundJob.MaxConcurrency).
		Bool("webhook_signature_validation", cfg.Webhook.Secret != "").
		Bool("planning_enabled", app.LLMService != nil).
		Bool("execution_enabled", app.GitHubService != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	ctx := context.Background()

	// Load variables from files (e.g. API keys, secrets)
	// This must happen before config replacement so that loaded variables can be used
	if err := a.StorageManager.LoadVariablesFromFiles(ctx, a.Config.Variables.Dir); err != nil {
		// Log warning but don't fail startup (consistent with other loaders)
		a.Logger.Warn().Err(err).Msg("Failed to load variables from files")
	}

	// Load variables from .env file (takes precedence over TOML variables)
	// This allows API keys to be stored in .env files for security
	if err := a.StorageManager.LoadEnvFile(ctx, ".env"); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load .env file")
	}

	// Seed defaults for keys the operator has not overridden
	a.seedDefaults(ctx)

	// Perform {key-name} replacement in config after storage initialization.
	// Must happen BEFORE the LLM and GitHub services read their keys.
	kvMap, err := a.StorageManager.KVStorage().GetAll(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
	} else if len(kvMap) > 0 {
		if err := common.ReplaceInStruct(a.Config, kvMap, a.Logger); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to replace key references in config")
		} else {
			a.Logger.Debug().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
		}
	} else {
		a.Logger.Debug().Msg("No key/value pairs found, skipping config replacement")
	}

	return nil
}

// seedDefaults writes default KV values for keys that do not exist yet
func (a *App) seedDefaults(ctx context.Context) {
	kv := a.StorageManager.KVStorage()
	for _, def := range common.GetDefaultKVValues() {
		if _, err := kv.Get(ctx, def.Key); err == nil {
			continue
		}
		if err := kv.Set(ctx, def.Key, def.Value, def.Description); err != nil {
			a.Logger.Warn().Err(err).Str("key", def.Key).Msg("Failed to seed default value")
		}
	}
}

// initServices initializes all business services in dependency order.
//
// JOB PIPELINE ARCHITECTURE:
// 1. Dispatcher - Single admission point: validate, dedup, record, enqueue
// 2. MemoryQueue - Bounded priority queue feeding the worker pool
// 3. Processor - Fixed worker pool with per-type timeouts and retries
// 4. Job Handlers - GeneratePlanHandler and ExecutePlanHandler
//
// The webhook service creates tasks and dispatches generate_plan jobs;
// a successful plan dispatches the execute_plan follow-up.
func (a *App) initServices() error {
	clock := common.SystemClock()

	// Audit trail first: nearly every other service records through it
	a.AuditService = audit.NewService(a.StorageManager.AuditStorage(), clock, a.Logger)
	a.Logger.Debug().Msg("Audit service initialized")

	// Job pipeline: queue, registries, dispatcher
	a.JobQueue = queue.NewMemoryQueue(a.Config.BackgroundJob.MaxQueueSize, a.Config.BackgroundJob.EnablePrioritization)
	a.Dedup = queue.NewDedupRegistry()
	a.Cancels = queue.NewCancelRegistry()
	a.Dispatcher = queue.NewDispatcher(
		a.JobQueue,
		a.Dedup,
		a.StorageManager.JobStatusStorage(),
		a.Cancels,
		a.AuditService,
		a.EventService,
		clock,
		a.Logger,
	)
	a.Logger.Debug().
		Int("max_queue_size", a.Config.BackgroundJob.MaxQueueSize).
		Bool("prioritized", a.Config.BackgroundJob.EnablePrioritization).
		Msg("Job dispatcher initialized")

	// LLM service; planning runs degraded without it
	llmService, err := llm.NewService(&a.Config.LLM, a.StorageManager.KVStorage(), a.Logger)
	if err != nil {
		a.LLMService = nil // Explicitly set to nil on error
		a.Logger.Warn().Err(err).Msg("Failed to initialize LLM service - plan generation will be unavailable")
		a.Logger.Info().Msg("To enable planning, configure llm.planner and llm.executor in config")
	} else {
		a.LLMService = llmService
		a.Logger.Debug().Msg("LLM service initialized")
	}

	a.PlannerService = planner.NewService(a.LLMService, a.Logger)
	a.Logger.Debug().Msg("Planner service initialized")

	// GitHub platform client; execution runs degraded without it
	githubService, err := github.NewService(context.Background(), &a.Config.GitHub, a.StorageManager.KVStorage(), a.AuditService, a.Logger)
	if err != nil {
		a.GitHubService = nil // Explicitly set to nil on error
		a.Logger.Warn().Err(err).Msg("Failed to initialize GitHub service - plan execution will be unavailable")
		a.Logger.Info().Msg("To enable execution, set FABER_GITHUB_TOKEN or github.token in config")
	} else {
		a.GitHubService = githubService
		a.Logger.Debug().Msg("GitHub service initialized")
	}

	// Container workspaces for plan execution
	containerService, err := container.NewService(&a.Config.Container, a.AuditService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize container service: %w", err)
	}
	a.ContainerService = containerService
	a.Logger.Debug().Str("runtime", a.Config.Container.Runtime).Msg("Container service initialized")

	// Register job handlers with the dispatcher
	generateHandler := jobs.NewGeneratePlanHandler(
		a.StorageManager.TaskStorage(),
		a.PlannerService,
		a.Dispatcher,
		a.AuditService,
		a.Logger,
	)
	if err := a.Dispatcher.RegisterHandler(generateHandler); err != nil {
		return fmt.Errorf("failed to register generate_plan handler: %w", err)
	}
	a.Logger.Debug().Str("job_type", generateHandler.Type()).Msg("Job handler registered")

	// Execution needs the platform client; without it execute_plan
	// dispatches are rejected with a clear reason instead of crashing
	if a.GitHubService != nil {
		executeHandler := jobs.NewExecutePlanHandler(
			a.StorageManager.TaskStorage(),
			a.ContainerService,
			a.GitHubService,
			jobs.NewStepExecutor(a.LLMService, a.Logger),
			a.AuditService,
			a.Logger,
		)
		if err := a.Dispatcher.RegisterHandler(executeHandler); err != nil {
			return fmt.Errorf("failed to register execute_plan handler: %w", err)
		}
		a.Logger.Debug().Str("job_type", executeHandler.Type()).Msg("Job handler registered")
	} else {
		a.Logger.Warn().Msg("execute_plan handler not registered (GitHub service unavailable)")
	}

	// Worker pool over the queue
	a.Processor = queue.NewProcessor(
		queue.ProcessorConfigFromBackground(a.Config.BackgroundJob),
		a.Dispatcher,
		a.JobQueue,
		a.StorageManager.JobStatusStorage(),
		a.Dedup,
		a.Cancels,
		a.AuditService,
		a.EventService,
		clock,
		a.Logger,
	)
	a.Logger.Debug().
		Int("concurrency", a.Config.BackgroundJob.MaxConcurrency).
		Msg("Job processor initialized")

	// Webhook intake
	a.WebhookService = webhook.NewService(
		&a.Config.Webhook,
		a.StorageManager.TaskStorage(),
		a.Dispatcher,
		a.AuditService,
		a.Logger,
	)
	a.Logger.Debug().Str("label", a.Config.Webhook.Label).Msg("Webhook service initialized")

	// Health aggregation and retention
	a.HealthService = health.NewService(
		a.StorageManager.JobStatusStorage(),
		a.JobQueue,
		a.EventService,
		clock,
		a.Logger,
	)
	a.Logger.Debug().Msg("Health service initialized")

	a.RetentionService = retention.NewService(
		a.StorageManager.AuditStorage(),
		a.StorageManager.JobStatusStorage(),
		a.AuditService,
		a.Config.AuditLog.RetentionDays,
		clock,
		a.Logger,
	)
	a.Logger.Debug().Int("retention_days", a.Config.AuditLog.RetentionDays).Msg("Retention service initialized")

	// Scheduler runs retention passes and hourly health snapshots
	a.SchedulerService = scheduler.NewService(a.Logger)
	if err := a.SchedulerService.RegisterJob(
		"retention_cleanup",
		a.Config.AuditLog.CleanupSchedule,
		"Removes audit events and terminal job records past retention",
		func() error { return a.RetentionService.Cleanup(context.Background()) },
	); err != nil {
		return fmt.Errorf("failed to register retention job: %w", err)
	}
	if err := a.SchedulerService.RegisterJob(
		"health_snapshot",
		"0 * * * *",
		"Logs an hourly health summary",
		a.logHealthSnapshot,
	); err != nil {
		return fmt.Errorf("failed to register health snapshot job: %w", err)
	}
	if err := a.SchedulerService.RegisterJob(
		"storage_gc",
		"30 3 * * *",
		"Compacts the Badger value log",
		a.StorageManager.RunValueLogGC,
	); err != nil {
		return fmt.Errorf("failed to register storage gc job: %w", err)
	}
	if err := a.SchedulerService.Start(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to start scheduler service")
	} else {
		a.Logger.Debug().Msg("Scheduler service started")
	}

	return nil
}

// logHealthSnapshot records the aggregate health report on the hourly
// schedule
func (a *App) logHealthSnapshot() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := a.HealthService.Check(ctx)
	a.Logger.Info().
		Str("status", string(report.Status)).
		Int("components", len(report.Components)).
		Msg("Health snapshot")
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	// WSHandler already initialized in New() before the log writer wiring

	// EventSubscriber bridges the event bus to connected WebSocket
	// clients with config-driven filtering and throttling
	subscriber := handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)
	subscriber.SubscribeAll()
	a.Logger.Debug().
		Int("allowed_events", len(a.Config.WebSocket.AllowedEvents)).
		Int("throttle_intervals", len(a.Config.WebSocket.ThrottleIntervals)).
		Msg("EventSubscriber initialized")

	a.WebhookHandler = handlers.NewWebhookHandler(&a.Config.Webhook, a.WebhookService, a.AuditService, a.EventService, a.Logger)

	a.JobHandler = handlers.NewJobHandler(a.StorageManager.JobStatusStorage(), a.Dispatcher, a.Logger)

	a.TaskHandler = handlers.NewTaskHandler(a.StorageManager.TaskStorage(), a.Logger)

	a.AuditHandler = handlers.NewAuditHandler(a.AuditService, a.Logger)

	a.HealthHandler = handlers.NewHealthHandler(a.HealthService, a.Logger)

	a.RetentionHandler = handlers.NewRetentionHandler(a.RetentionService, a.Logger)

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop the scheduler first so no retention pass starts mid-shutdown
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Stop the worker pool; in-flight jobs get the configured drain window
	if a.Processor != nil {
		if err := a.Processor.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop job processor")
		} else {
			a.Logger.Info().Msg("Job processor stopped")
		}
	}

	// Refuse further enqueues
	if a.JobQueue != nil {
		a.JobQueue.Close()
	}

	// Stop the websocket log writer
	if a.WSWriter != nil {
		if err := a.WSWriter.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop websocket log writer")
		}
	}

	// Close LLM provider clients
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		} else {
			a.Logger.Info().Msg("LLM service closed")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
