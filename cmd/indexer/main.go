package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"symptom-assistant-server/internal/config"
	"symptom-assistant-server/internal/knowledge"
	"symptom-assistant-server/internal/observability"
)

func main() {
	var termsFlag, intervalFlag string
	flag.StringVar(&termsFlag, "terms", "", "comma-separated PubMed search terms (defaults to the built-in list)")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 24h)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	observability.InitLogger("symptom-assistant-indexer", cfg.Environment)

	if cfg.Typesense.URL == "" {
		log.Fatal().Msg("TYPESENSE_URL is not set; nothing to seed")
	}

	terms := knowledge.DefaultSeedTerms
	if strings.TrimSpace(termsFlag) != "" {
		terms = strings.Split(termsFlag, ",")
	}

	var interval time.Duration
	if v := strings.TrimSpace(intervalFlag); v != "" {
		interval, err = time.ParseDuration(v)
		if err != nil || interval <= 0 {
			log.Fatal().Str("interval", v).Msg("Invalid interval")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index := knowledge.NewTypesenseIndex(cfg.Typesense)
	pubmed := knowledge.NewPubMed(cfg.PubMed)

	for {
		if err := index.InitSchema(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to initialize knowledge index")
		} else {
			res, err := knowledge.Seed(ctx, index, pubmed, terms, log.Logger)
			if err != nil {
				log.Error().Err(err).Msg("Seeding failed")
			} else {
				log.Info().Int("terms", res.Terms).Int("articles", res.Articles).Int("failed", res.Failed).Msg("Seeding complete")
			}
		}

		if interval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Indexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}
