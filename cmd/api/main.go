package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/devfinance/internal/api/handlers"
	"github.com/dvloznov/devfinance/internal/api/middleware"
	"github.com/dvloznov/devfinance/internal/api/ws"
	"github.com/dvloznov/devfinance/internal/backup"
	"github.com/dvloznov/devfinance/internal/events"
	"github.com/dvloznov/devfinance/internal/exchange"
	"github.com/dvloznov/devfinance/internal/ledger"
	"github.com/dvloznov/devfinance/internal/logger"
	"github.com/dvloznov/devfinance/internal/notify"
	"github.com/dvloznov/devfinance/internal/storage"
	"github.com/dvloznov/devfinance/internal/transfer"
)

func main() {
	// Parse command-line flags
	var (
		port         = flag.String("port", "8080", "HTTP server port")
		dataDir      = flag.String("data-dir", defaultDataDir(), "Directory for persisted collections")
		sessionToken = flag.String("token", os.Getenv("DEVFINANCE_TOKEN"), "Session token required on API requests (empty disables the check)")
		backupBucket = flag.String("backup-bucket", os.Getenv("BACKUP_BUCKET"), "GCS bucket for automatic backups (or set BACKUP_BUCKET env)")
		logLevel     = flag.String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.NewWithLevel(*logLevel)

	ctx := context.Background()

	st, err := storage.Open(*dataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}

	bus := events.NewBus()

	led, err := ledger.Open(st, bus, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}

	engine, err := notify.NewEngine(st, bus, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize notifications")
	}

	rates := exchange.NewClient(st, log)

	// Backup target: GCS when a bucket is configured, a local directory
	// otherwise.
	var target backup.Target
	if *backupBucket != "" {
		gcsTarget, err := backup.NewGCSTarget(ctx, *backupBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS backup target")
		}
		defer gcsTarget.Close()
		target = gcsTarget
	} else {
		localTarget, err := backup.NewLocalDirTarget(filepath.Join(*dataDir, "backups"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create local backup target")
		}
		target = localTarget
	}

	scheduler, err := backup.NewScheduler(st, log, target, func(now time.Time) ([]byte, error) {
		return transfer.ExportJSON(led.Snapshot(), now)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backup scheduler")
	}

	schedulerCtx, cancelScheduler := context.WithCancel(ctx)
	defer cancelScheduler()
	go scheduler.Start(schedulerCtx)

	// Websocket hub: every change event goes out to connected clients.
	hub := ws.NewHub(log)
	bus.Subscribe(hub.Broadcast)

	// Re-run the notification rules whenever data changes. Notification
	// list changes themselves are excluded or every firing would trigger
	// another evaluation.
	bus.Subscribe(func(e events.Event) {
		if e.Collection == events.CollectionNotifications {
			return
		}
		engine.Evaluate(notify.Inputs{
			Budgets:       led.Budgets(),
			Transactions:  led.Transactions(),
			Goals:         led.FinancialGoals(),
			Debts:         led.Debts(),
			EmergencyFund: led.EmergencyFund(),
			Now:           time.Now(),
		})
	})

	// Initialize handlers
	transactionsHandler := handlers.NewTransactionsHandler(led, log)
	cardsHandler := handlers.NewCardsHandler(led, log)
	goalsHandler := handlers.NewGoalsHandler(led, log)
	debtsHandler := handlers.NewDebtsHandler(led, log)
	fundHandler := handlers.NewEmergencyFundHandler(led, log)
	budgetsHandler := handlers.NewBudgetsHandler(led, log)
	categoriesHandler := handlers.NewCategoriesHandler(led, log)
	insightsHandler := handlers.NewInsightsHandler(led, log)
	notificationsHandler := handlers.NewNotificationsHandler(engine, log)
	ratesHandler := handlers.NewRatesHandler(rates, log)
	transferHandler := handlers.NewTransferHandler(led, log)
	profileHandler := handlers.NewProfileHandler(st, log)

	// Create router
	mux := http.NewServeMux()

	restResource(mux, "/api/transactions", transactionsHandler.List, transactionsHandler.Create,
		transactionsHandler.Update, transactionsHandler.Delete)
	restResource(mux, "/api/cards", cardsHandler.List, cardsHandler.Create,
		cardsHandler.Update, cardsHandler.Delete)
	restResource(mux, "/api/goals", goalsHandler.List, goalsHandler.Create,
		goalsHandler.Update, goalsHandler.Delete)
	restResource(mux, "/api/debts", debtsHandler.List, debtsHandler.Create,
		debtsHandler.Update, debtsHandler.Delete)
	restResource(mux, "/api/categories", categoriesHandler.List, categoriesHandler.Create,
		categoriesHandler.Update, categoriesHandler.Delete)

	// Emergency fund is a singleton, not a collection
	mux.HandleFunc("/api/emergency-fund", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fundHandler.Get(w, r)
		case http.MethodPut:
			fundHandler.Put(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	restResource(mux, "/api/budgets", budgetsHandler.List, budgetsHandler.Create,
		budgetsHandler.Update, budgetsHandler.Delete)
	mux.HandleFunc("/api/budgets/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/budgets/")
		if id, ok := strings.CutSuffix(rest, "/progress"); ok && r.Method == http.MethodGet {
			budgetsHandler.Progress(w, r, id)
			return
		}
		itemDispatch(w, r, rest, budgetsHandler.Update, budgetsHandler.Delete)
	})

	// Derived read models
	getOnly(mux, "/api/dashboard", insightsHandler.Dashboard)
	getOnly(mux, "/api/summary", insightsHandler.Summary)
	getOnly(mux, "/api/forecast", insightsHandler.Forecast)
	getOnly(mux, "/api/trends", insightsHandler.Trends)
	getOnly(mux, "/api/rates", ratesHandler.Get)

	// Notifications
	mux.HandleFunc("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			notificationsHandler.List(w, r)
		case http.MethodDelete:
			notificationsHandler.ClearAll(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		notificationsHandler.MarkAllRead(w, r)
	})
	mux.HandleFunc("/api/notifications/settings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		notificationsHandler.UpdateSettings(w, r)
	})
	mux.HandleFunc("/api/notifications/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
		if id, ok := strings.CutSuffix(rest, "/read"); ok && r.Method == http.MethodPost {
			notificationsHandler.MarkRead(w, r, id)
			return
		}
		if rest != "" && r.Method == http.MethodDelete {
			notificationsHandler.Delete(w, r, rest)
			return
		}
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Import / export
	postOnly(mux, "/api/import/json", transferHandler.ImportJSON)
	postOnly(mux, "/api/import/csv", transferHandler.ImportCSV)
	getOnly(mux, "/api/export/json", transferHandler.ExportJSON)
	getOnly(mux, "/api/export/csv", transferHandler.ExportCSV)
	getOnly(mux, "/api/export/report", transferHandler.ExportReport)

	// Profile
	mux.HandleFunc("/api/profile", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			profileHandler.Get(w, r)
		case http.MethodPut:
			profileHandler.Put(w, r)
		case http.MethodDelete:
			profileHandler.Delete(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Websocket push channel
	getOnly(mux, "/ws", hub.HandleWS)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Session(*sessionToken)(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Str("data_dir", *dataDir).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelScheduler()
	hub.Close()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func defaultDataDir() string {
	if env := os.Getenv("DEVFINANCE_DATA_DIR"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".devfinance")
}

// restResource wires GET/POST on the collection path and PUT/DELETE on
// the item path.
func restResource(mux *http.ServeMux, base string, list, create http.HandlerFunc,
	update, del func(http.ResponseWriter, *http.Request, string)) {

	mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list(w, r)
		case http.MethodPost:
			create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc(base+"/", func(w http.ResponseWriter, r *http.Request) {
		itemDispatch(w, r, strings.TrimPrefix(r.URL.Path, base+"/"), update, del)
	})
}

func itemDispatch(w http.ResponseWriter, r *http.Request, id string,
	update, del func(http.ResponseWriter, *http.Request, string)) {

	if id == "" {
		middleware.WriteError(w, http.StatusBadRequest, "ID is required")
		return
	}
	switch r.Method {
	case http.MethodPut:
		update(w, r, id)
	case http.MethodDelete:
		del(w, r, id)
	default:
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func getOnly(mux *http.ServeMux, path string, h http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	})
}

func postOnly(mux *http.ServeMux, path string, h http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	})
}
