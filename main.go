package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/briefingdesk/backend/src/config"
	"github.com/username/briefingdesk/backend/src/database"
	"github.com/username/briefingdesk/backend/src/handlers"
	"github.com/username/briefingdesk/backend/src/logger"
	"github.com/username/briefingdesk/backend/src/parsers"
	"github.com/username/briefingdesk/backend/src/processors"
	"github.com/username/briefingdesk/backend/src/security"
	"github.com/username/briefingdesk/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("BriefingDesk backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}
	if config.Cfg.ExtractionWebhookURL == "" {
		logger.L.Warn("EXTRACTION_WEBHOOK_URL not set; document uploads will be rejected, CSV imports still work.")
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	userHandler := handlers.NewUserHandler(authService, emailService)
	handlers.InitializeGoogleOAuthConfig()

	sheetParser := parsers.NewAssetSheetParser()
	holdingProcessor := processors.NewHoldingProcessor(nil)

	extractionService := services.NewExtractionService(config.Cfg.ExtractionWebhookURL, config.Cfg.ExtractionTimeout)
	marketDataClient := services.NewMarketDataClient(config.Cfg.MarketDataBaseURL, config.Cfg.MarketDataAPIKey, config.Cfg.MarketDataTimeout)
	enrichmentService := services.NewEnrichmentService(marketDataClient, reportCache, config.Cfg.EnrichmentJobTTL)
	assetService := services.NewAssetService(holdingProcessor, enrichmentService, reportCache)

	importHandler := handlers.NewImportHandler(extractionService, sheetParser)
	assetHandler := handlers.NewAssetHandler(assetService)
	enrichHandler := handlers.NewEnrichHandler(enrichmentService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	// Public GET routes (no CSRF needed for these GETs)
	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken(config.Cfg.CSRFAuthKey))
	apiRouter.HandleFunc("GET /api/auth/verify-email", userHandler.VerifyEmailHandler)
	apiRouter.HandleFunc("GET /api/auth/google/login", userHandler.HandleGoogleLogin)
	apiRouter.HandleFunc("GET /api/auth/google/callback", userHandler.HandleGoogleCallback)

	// Auth actions - POST routes go through CSRF
	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.HandleFunc("POST /logout", userHandler.LogoutUserHandler)
	authActionRouter.HandleFunc("POST /request-password-reset", userHandler.RequestPasswordResetHandler)
	authActionRouter.HandleFunc("POST /reset-password", userHandler.ResetPasswordHandler)

	apiRouter.Handle("/api/auth/", http.StripPrefix("/api/auth", handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey)(authActionRouter)))

	// CSRF + auth for the protected asset pipeline routes
	csrfProtection := handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey)
	applyCsrfAndAuth := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(userHandler.AuthMiddleware(handler))
	}

	apiRouter.Handle("POST /api/portfolio-assets/extract", applyCsrfAndAuth(importHandler.HandleExtract))
	apiRouter.Handle("POST /api/portfolio-assets/bulk", applyCsrfAndAuth(assetHandler.HandleBulkImport))
	apiRouter.Handle("POST /api/portfolio-assets/enrich", applyCsrfAndAuth(enrichHandler.HandleEnrich))
	apiRouter.Handle("GET /api/portfolio-assets", applyCsrfAndAuth(assetHandler.HandleListAssets))
	apiRouter.Handle("GET /api/portfolio-assets/{id}", applyCsrfAndAuth(assetHandler.HandleGetAsset))
	apiRouter.Handle("PATCH /api/portfolio-assets/{id}", applyCsrfAndAuth(assetHandler.HandleUpdateAsset))
	apiRouter.Handle("POST /api/portfolio-assets/{id}/mark-reviewed", applyCsrfAndAuth(assetHandler.HandleMarkReviewed))
	apiRouter.Handle("DELETE /api/portfolio-assets/{id}", applyCsrfAndAuth(assetHandler.HandleDeleteAsset))
	apiRouter.Handle("GET /api/enrichment-jobs/{id}", applyCsrfAndAuth(enrichHandler.HandleGetEnrichmentJob))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "BriefingDesk backend is running"})
		} else if !strings.HasPrefix(r.URL.Path, "/api/") {
			logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // inline enrichment passes can be slow
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
