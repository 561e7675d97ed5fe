package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kartoteka-app/kartotekago/internal/catalog"
	"github.com/kartoteka-app/kartotekago/internal/config"
	"github.com/kartoteka-app/kartotekago/internal/database"
	"github.com/kartoteka-app/kartotekago/internal/handlers"
	"github.com/kartoteka-app/kartotekago/internal/marketplace/shoper"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/pricing"
	"github.com/kartoteka-app/kartotekago/internal/publish"
	"github.com/kartoteka-app/kartotekago/internal/recognize"
	"github.com/kartoteka-app/kartotekago/internal/scanner"
	"github.com/kartoteka-app/kartotekago/internal/store"
	"github.com/kartoteka-app/kartotekago/internal/utils"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (detects embedded vs external automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 3. Auto-migrate schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.Operator{},
		&models.ScanSession{},
		&models.ScanRecord{},
		&models.Candidate{},
		&models.PublishAttempt{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	st := store.NewGormStore(db)

	// 4. Seed the initial operator account if configured
	seedAdmin(st, cfg)

	// 5. Recognition chain: Gemini vision first, filename heuristic as
	// the degraded fallback so a scan never hard-fails on recognition
	recognizers := []recognize.Provider{}
	if cfg.Gemini.APIKey != "" {
		gemini, err := recognize.NewGeminiProvider(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Printf("⚠️ Recognition: Gemini unavailable: %v", err)
		} else {
			defer gemini.Close()
			recognizers = append(recognizers, gemini)
			log.Println("✅ Recognition: Gemini provider registered")
		}
	}
	recognizers = append(recognizers, recognize.NewFilenameProvider())
	recognitionChain := recognize.NewChain(recognizers...)

	// 6. Catalog chain: Cardbase REST first, Odoo XML-RPC fallback
	searchers := []catalog.Searcher{catalog.NewCardbaseClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey)}
	if cfg.Odoo.URL != "" {
		searchers = append(searchers, catalog.NewOdooClient(
			cfg.Odoo.URL, cfg.Odoo.Database, cfg.Odoo.Username, cfg.Odoo.Password, cfg.Odoo.Currency))
		log.Println("✅ Catalog: Odoo fallback registered")
	}
	searchChain := catalog.NewChain(searchers...)

	engine := pricing.Engine{
		FxRate:        cfg.Pricing.FxRate,
		Multiplier:    cfg.Pricing.Multiplier,
		LocalCurrency: cfg.Pricing.LocalCurrency,
	}

	resolver := scanner.NewResolver(st, recognitionChain, searchChain, engine)
	market := shoper.NewClient(cfg.Shoper.BaseURL, cfg.Shoper.Token)
	pipeline := publish.NewPipeline(st, market, cfg.Publish)

	// 7. HTTP router
	router := handlers.NewRouter(cfg, st, resolver, pipeline)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Server starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

// seedAdmin creates the configured admin operator on first boot
func seedAdmin(st store.Store, cfg *config.Config) {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		return
	}
	ctx := context.Background()
	if _, err := st.GetOperatorByEmail(ctx, cfg.Admin.Email); err == nil {
		return
	}
	hash, err := utils.HashPassword(cfg.Admin.Password)
	if err != nil {
		log.Printf("⚠️ Failed to hash admin password: %v", err)
		return
	}
	op := &models.Operator{
		Email:    cfg.Admin.Email,
		Password: hash,
		Name:     "Admin",
		Role:     "admin",
		IsActive: true,
	}
	if err := st.CreateOperator(ctx, op); err != nil {
		log.Printf("⚠️ Failed to seed admin operator: %v", err)
		return
	}
	log.Printf("✅ Seeded admin operator %s", cfg.Admin.Email)
}
