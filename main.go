package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/Robooto/trade-journal/src/brokerage"
	"github.com/Robooto/trade-journal/src/config"
	"github.com/Robooto/trade-journal/src/database"
	"github.com/Robooto/trade-journal/src/handlers"
	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/services"
)

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func enableCORS(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{}
	for _, origin := range config.Cfg.AllowedOrigins {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Trade journal backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	chartCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	brokerageClient := brokerage.NewClient(
		config.Cfg.TastytradeURL,
		config.Cfg.TastytradeUsername,
		config.Cfg.TastytradePassword,
		config.Cfg.BrokerageHTTPTimeout,
	)
	gateway := brokerage.NewGateway(database.DB, brokerageClient)

	tradesService := services.NewTradesService(gateway)
	chartService := services.NewChartService(chartCache, config.Cfg.ChartHTTPTimeout)

	tradesHandler := handlers.NewTradesHandler(tradesService)
	chartsHandler := handlers.NewChartsHandler(chartService)
	entriesHandler := handlers.NewEntriesHandler(database.DB)
	pivotsHandler := handlers.NewPivotsHandler(database.DB)
	analysisHandler := handlers.NewAnalysisHandler()

	limiter := rate.NewLimiter(rate.Every(config.Cfg.RateLimitInterval), config.Cfg.RateLimitBurst)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware(limiter))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Trade Journal Backend is running"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/trades", tradesHandler.HandleGetAllPositions)
		r.Post("/trades/market-data", tradesHandler.HandleGetMarketData)

		r.Get("/charts/history/{symbol}", chartsHandler.HandleGetSymbolHistory)

		r.Get("/entries", entriesHandler.HandleListEntries)
		r.Post("/entries", entriesHandler.HandleCreateEntry)
		r.Get("/entries/{id}", entriesHandler.HandleGetEntry)
		r.Put("/entries/{id}", entriesHandler.HandleUpdateEntry)
		r.Delete("/entries/{id}", entriesHandler.HandleDeleteEntry)
		r.Post("/entries/{id}/events", entriesHandler.HandleAddEvent)

		r.Post("/pivots", pivotsHandler.HandleCreatePivotLevel)
		r.Get("/pivots/latest", pivotsHandler.HandleGetLatestPivotLevel)
		r.Get("/pivots/history", pivotsHandler.HandleGetPivotLevelHistory)

		r.Post("/analysis/detect-crossing", analysisHandler.HandleDetectCrossing)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
