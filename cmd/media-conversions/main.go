package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-conversions/internal/conversion"
	"media-conversions/internal/database"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/generator"
	"media-conversions/internal/handlers"
	"media-conversions/internal/imageproc"
	"media-conversions/internal/lifecycle"
	"media-conversions/internal/logging"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/memory"
	"media-conversions/internal/metrics"
	"media-conversions/internal/middleware"
	"media-conversions/internal/pathgen"
	"media-conversions/internal/queue"
	"media-conversions/internal/responsive"
	"media-conversions/internal/startup"
	"media-conversions/internal/urlgen"
)

const shutdownTimeout = 30 * time.Second

func main() {
	startTime := time.Now()

	// Before anything allocates.
	limit := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	ctx := context.Background()

	dbStart := time.Now()
	repo, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer repo.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	registry, err := conversion.LoadFile(config.ConversionsFile, config.QueueConversionsByDefault)
	if err != nil {
		startup.LogFatal("Failed to load conversions: %v", err)
	}
	startup.LogConversionsInit(config.ConversionsFile, registry.ModelTypes())
	resolver := conversion.NewResolver(registry)

	processor, err := imageproc.New(config.ImageDriver)
	if err != nil {
		startup.LogFatal("Failed to initialize image driver: %v", err)
	}
	if processor.Driver() == imageproc.DriverVips {
		defer imageproc.ShutdownVips()
	}
	generators := generator.NewRegistry(
		generator.Image{},
		generator.Webp{},
		generator.NewVideo(config.FFmpegPath, config.FFprobePath),
	)
	startup.LogGeneratorsInit(processor.Driver(), config.FFmpegPath)

	disks, err := filesystem.OpenDisks(ctx, config.Disks)
	if err != nil {
		startup.LogFatal("Failed to open disks: %v", err)
	}
	paths := pathgen.Default{}
	fs := filesystem.New(disks, paths)

	manip := manipulator.New(manipulator.Deps{
		Store:      repo,
		Resolver:   resolver,
		Generators: generators,
		Processor:  processor,
		Filesystem: fs,
		Responsive: responsive.NewGenerator(fs, repo, processor, responsive.Options{
			TinyPlaceholders: config.UseTinyPlaceholders,
			TempDir:          config.TempDir,
		}),
	}, manipulator.Config{
		TempDir: config.TempDir,
		Timeout: config.ConversionTimeout,
	})

	monitor := memory.NewMonitor(memory.DefaultConfig(), limit.Bytes)
	monitor.Start()

	jobs, err := queue.Open(queue.Config{
		Dir:     config.QueueDir,
		Workers: config.ConversionWorkers,
		Gate:    monitor,
	}, manip)
	if err != nil {
		startup.LogFatal("Failed to open job queue: %v", err)
	}
	manip.SetDispatcher(jobs)
	startup.LogQueueInit(config.QueueDir, config.ConversionWorkers, jobs.Depth())
	if err := jobs.Start(ctx); err != nil {
		startup.LogFatal("Failed to start job queue: %v", err)
	}

	collector := metrics.NewCollector(repo, jobs, time.Minute)
	collector.Start()
	stopDBMetrics := startDBMetrics(repo, 30*time.Second)

	h := handlers.New(handlers.Deps{
		Store:       repo,
		Manipulator: manip,
		Lifecycle:   lifecycle.New(repo, fs, manip),
		URLs:        urlgen.NewFactory(disks, paths, resolver),
		Filesystem:  fs,
		Stats:       repo,
		Queue:       jobs,
		Memory:      monitor,

		TinyPlaceholders: config.UseTinyPlaceholders,
	})

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           buildHandler(router, config),
		ReadHeaderTimeout: 10 * time.Second,
		// Synchronous conversions can outlast a fixed write timeout.
		WriteTimeout: config.ConversionTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(config.MetricsPort, h.MetricsHandler())
	}

	done := make(chan struct{})
	go handleShutdown(srv, metricsSrv, done, func() {
		startup.LogShutdownStep("Stopping job queue")
		// The monitor goes first so paused workers give up their jobs.
		monitor.Stop()
		if err := jobs.Stop(); err != nil {
			logging.Warn("Job queue shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Job queue stopped")
		}
		collector.Stop()
		stopDBMetrics()
	})

	h.SetReady(true)
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	return r
}

// buildHandler wraps the router with access logging and panic recovery.
// Recovery sits inside the logger so a recovered 500 is still logged.
func buildHandler(router http.Handler, config *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	return middleware.Logger(loggingConfig)(middleware.Recover(router))
}

func startMetricsServer(port string, handler http.Handler) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

// startDBMetrics refreshes the connection pool gauges until the returned
// func is called.
func startDBMetrics(repo *database.Repository, interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	quit := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				repo.UpdateDBMetrics()
			case <-quit:
				return
			}
		}
	}()
	return func() { close(quit) }
}

func handleShutdown(srv, metricsSrv *http.Server, done chan<- struct{}, stopWorkers func()) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// The queue must outlive the HTTP server, which can still dispatch.
	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	stopWorkers()

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
