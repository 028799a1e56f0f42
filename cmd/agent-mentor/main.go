package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/AgentToolkit/agent-mentor/internal/adapters/duckdb"
	"github.com/AgentToolkit/agent-mentor/internal/adapters/memory"
	"github.com/AgentToolkit/agent-mentor/internal/adapters/mongodb"
	"github.com/AgentToolkit/agent-mentor/internal/adapters/otlp"
	appconfig "github.com/AgentToolkit/agent-mentor/internal/config"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
	"github.com/AgentToolkit/agent-mentor/internal/extensions/plugins"
	"github.com/AgentToolkit/agent-mentor/internal/observability"
	"github.com/AgentToolkit/agent-mentor/internal/runtime"
	"github.com/AgentToolkit/agent-mentor/pkg/server"
)

const serviceVersion = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting agent-mentor")

	if err := run(logger); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	settings := appconfig.Load()

	shutdownTracing, err := observability.Setup(ctx, logger, "agent-mentor", serviceVersion, settings.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = shutdownTracing(shutdownCtx)
	}()

	secret, err := appconfig.NewSecretKey()
	if err != nil {
		return fmt.Errorf("failed to init secret key: %w", err)
	}
	tenantConfig := appconfig.NewTenantConfigService(logger, settings, secret)

	// Process-wide action dedup shared across concurrently processed
	// traces.
	dedup := services.NewActionDeduper()

	catalog, err := plugins.BuildCatalog(logger, dedup)
	if err != nil {
		return fmt.Errorf("failed to build plugin catalog: %w", err)
	}

	tenants := runtime.NewTenantRegistry(logger, settings, tenantConfig,
		storeFactory(settings), catalog, dedup)
	defer tenants.Close(context.Background())

	eventBus := services.NewEventBus(logger)
	scheduler := services.NewJobScheduler(logger, services.SchedulerConfig{
		MaxConcurrentJobs: settings.MaxConcurrentJobs,
	})
	scheduler.Start(ctx, func(jobCtx context.Context, job domain.Job) error {
		return executeJob(jobCtx, tenants, eventBus, job)
	})

	metrics := server.NewMetrics()
	receiver := otlp.NewReceiver(logger,
		func(ctx context.Context, tenantID string) (ports.DataManager, error) {
			components, err := tenants.Components(ctx, tenantID)
			if err != nil {
				return nil, err
			}
			return components.DataManager, nil
		},
		func(ctx context.Context, tenantID string, traces []*domain.Trace) {
			for _, trace := range traces {
				metrics.SpansIngested.Add(float64(trace.NumOfSpans))
			}
			scheduleTraceProcessing(ctx, logger, scheduler, tenantID, traces)
		},
		settings.RewriteStaleTimestamps,
	)

	apiServer := server.NewServer(logger, tenants, scheduler, receiver, metrics)

	c := cors.New(cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	httpServer := &http.Server{
		Addr:    settings.HTTPAddr,
		Handler: c.Handler(apiServer.Handler()),
	}

	grpcServer := grpc.NewServer()
	receiver.RegisterGRPC(grpcServer)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", settings.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		listener, err := net.Listen("tcp", settings.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen failed: %w", err)
		}
		logger.Info("starting otlp grpc receiver", "addr", settings.GRPCAddr)
		return grpcServer.Serve(listener)
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down servers")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// storeFactory builds the per-tenant store client for the configured
// store type.
func storeFactory(settings *appconfig.Settings) runtime.StoreFactory {
	return func(ctx context.Context, cfg domain.TenantConfig) (ports.Store, error) {
		switch cfg.StoreType {
		case domain.StoreTypeMemory:
			return memory.NewStore(), nil
		case domain.StoreTypeDuckDB:
			path := settings.DuckDBPath
			if cfg.TenantID != settings.DefaultTenantID {
				path = fmt.Sprintf("%s.%s", path, cfg.TenantID)
			}
			return duckdb.NewStore(path)
		case domain.StoreTypeMongoDB:
			uri := cfg.ConnectionStr
			if uri == "" {
				uri = fmt.Sprintf("mongodb://%s:%s@%s", cfg.Username, cfg.Password, cfg.Hostname)
				if cfg.Username == "" {
					uri = "mongodb://" + cfg.Hostname
				}
			}
			database := cfg.DatabaseName
			if database == "" {
				database = "agent_mentor_" + cfg.TenantID
			}
			return mongodb.NewStore(ctx, uri, database)
		}
		return nil, fmt.Errorf("unsupported store type %q for tenant %s", cfg.StoreType, cfg.TenantID)
	}
}

// executeJob runs one background analytics execution and publishes the
// completion event. Failures stay on the job and in the result store.
func executeJob(ctx context.Context, tenants *runtime.TenantRegistry, bus *services.EventBus, job domain.Job) error {
	components, err := tenants.Components(ctx, job.TenantID)
	if err != nil {
		return err
	}

	input := map[string]any{}
	if job.TraceID != "" {
		input["trace_id"] = job.TraceID
	}
	if job.TraceGroupID != "" {
		input["trace_group_id"] = job.TraceGroupID
	}

	result, err := components.Engine.Execute(ctx, job.AnalyticsID, input)
	if err != nil {
		return err
	}

	bus.Publish(services.Event{
		EventID:   string(job.ID),
		Type:      services.EventTypeStatus,
		Data:      string(result.Status),
		Timestamp: time.Now().UTC(),
	})
	if result.Error != nil {
		return fmt.Errorf("%s: %s", result.Error.ErrorType, result.Error.Message)
	}
	return nil
}

// scheduleTraceProcessing enqueues task extraction for every freshly
// ingested trace.
func scheduleTraceProcessing(ctx context.Context, logger *slog.Logger, scheduler *services.JobScheduler, tenantID string, traces []*domain.Trace) {
	for _, trace := range traces {
		eventID, err := domain.EncodeEventID(plugins.IDTaskAnalytics, trace.ElementID, "")
		if err != nil {
			continue
		}
		job := domain.Job{
			ID:          domain.JobID(eventID),
			TenantID:    tenantID,
			AnalyticsID: plugins.IDTaskAnalytics,
			TraceID:     trace.ElementID,
		}
		if err := scheduler.Submit(ctx, job); err != nil {
			logger.Warn("failed to schedule trace processing", "trace_id", trace.ElementID, "error", err)
		}
	}
}
