// folderscan runs the batch pipeline over a local folder of card photos
// from the command line: each image is resolved, the best candidate is
// auto-confirmed and published. Publishing is a dry run unless -publish
// is given, so a rehearsal over a new folder is the default.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kartoteka-app/kartotekago/internal/batch"
	"github.com/kartoteka-app/kartotekago/internal/catalog"
	"github.com/kartoteka-app/kartotekago/internal/config"
	"github.com/kartoteka-app/kartotekago/internal/marketplace/shoper"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/pricing"
	"github.com/kartoteka-app/kartotekago/internal/publish"
	"github.com/kartoteka-app/kartotekago/internal/recognize"
	"github.com/kartoteka-app/kartotekago/internal/scanner"
	"github.com/kartoteka-app/kartotekago/internal/store"
)

func main() {
	dir := flag.String("dir", "", "folder of card images to process (required)")
	warehouse := flag.String("warehouse", "", "starting warehouse code for the session")
	doPublish := flag.Bool("publish", false, "actually create marketplace products (default: dry run)")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	files, err := listImages(*dir)
	if err != nil {
		log.Fatalf("Cannot list %s: %v", *dir, err)
	}
	if len(files) == 0 {
		log.Fatalf("No images found in %s", *dir)
	}

	ctx := context.Background()

	// The CLI keeps its records in memory; the session of record is the
	// marketplace itself when -publish is set
	st := store.NewMemoryStore()

	recognizers := []recognize.Provider{}
	if cfg.Gemini.APIKey != "" {
		gemini, err := recognize.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Printf("⚠️ Gemini unavailable, falling back to filenames: %v", err)
		} else {
			defer gemini.Close()
			recognizers = append(recognizers, gemini)
		}
	}
	recognizers = append(recognizers, recognize.NewFilenameProvider())

	searchers := []catalog.Searcher{catalog.NewCardbaseClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey)}
	if cfg.Odoo.URL != "" {
		searchers = append(searchers, catalog.NewOdooClient(
			cfg.Odoo.URL, cfg.Odoo.Database, cfg.Odoo.Username, cfg.Odoo.Password, cfg.Odoo.Currency))
	}

	engine := pricing.Engine{
		FxRate:        cfg.Pricing.FxRate,
		Multiplier:    cfg.Pricing.Multiplier,
		LocalCurrency: cfg.Pricing.LocalCurrency,
	}
	resolver := scanner.NewResolver(st, recognize.NewChain(recognizers...), catalog.NewChain(searchers...), engine)
	pipeline := publish.NewPipeline(st, shoper.NewClient(cfg.Shoper.BaseURL, cfg.Shoper.Token), cfg.Publish)

	session := &models.ScanSession{
		ID:                    uuid.NewString(),
		StartingWarehouseCode: *warehouse,
		CreatedAt:             time.Now().UTC(),
	}
	if err := st.CreateSession(ctx, session); err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	controller := batch.New(session, files, st, resolver, pipeline, !*doPublish)

	for {
		_, file, status := controller.State()
		if status == batch.StatusDone {
			break
		}

		scan, err := controller.ResolveCurrent(ctx)
		if err != nil {
			log.Fatalf("Resolve failed for %s: %v", file, err)
		}

		if len(scan.Candidates) == 0 {
			log.Printf("⏭️  %s: no candidates, skipping", filepath.Base(file))
			if err := controller.SkipCurrent(ctx); err != nil {
				log.Fatalf("Skip failed: %v", err)
			}
			continue
		}

		best := scan.Candidates[0]
		if err := st.ChooseCandidate(ctx, scan.ID, best.ID); err != nil {
			log.Fatalf("Choose failed: %v", err)
		}

		result, err := controller.ConfirmCurrent(ctx, best.ID)
		if err != nil {
			// Publish failures hold the current file; in auto mode skip it
			log.Printf("⚠️  %s: publish failed (%v), skipping", filepath.Base(file), err)
			if err := controller.SkipCurrent(ctx); err != nil {
				log.Fatalf("Skip failed: %v", err)
			}
			continue
		}

		if result.DryRun {
			log.Printf("✅ %s → %s %.2f %s [dry run]",
				filepath.Base(file), result.Payload.Code, result.Payload.Price, result.Payload.Currency)
		} else {
			log.Printf("✅ %s → %s (shoper id %d)",
				filepath.Base(file), result.Payload.Code, *result.MarketplaceProductID)
		}
	}

	summary := controller.Summary()
	log.Printf("🏁 Batch complete: %d files, %d published, %d skipped",
		summary.Total, summary.Published, summary.Skipped)
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
