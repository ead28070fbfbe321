package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"symptom-assistant-server/internal/advice"
	"symptom-assistant-server/internal/cache"
	"symptom-assistant-server/internal/chat"
	"symptom-assistant-server/internal/config"
	"symptom-assistant-server/internal/ehr"
	"symptom-assistant-server/internal/knowledge"
	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/models"
	"symptom-assistant-server/internal/observability"
	"symptom-assistant-server/internal/places"
	"symptom-assistant-server/internal/routes"
	"symptom-assistant-server/internal/symptoms"
)

const (
	serviceName = "symptom-assistant-server"
	version     = "1.0.0"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(serviceName, cfg.Environment)
	logger := log.Logger
	metrics := observability.NewMetrics("symptom_assistant", prometheus.DefaultRegisterer)

	if !cfg.UsesDatabase() {
		log.Fatal().Msg("DB_HOST is not set; a MySQL database is required")
	}
	db, err := models.InitDB(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional; without it profile and geocode lookups are uncached.
	var store cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, caching disabled")
		} else {
			defer redisCache.Close()
			store = redisCache
		}
	}

	provider := llm.NewOpenAIClient(cfg.LLM)
	pipeline := llm.NewPipeline(provider,
		llm.WithMaxAttempts(cfg.LLM.MaxAttempts),
		llm.WithMetrics(metrics),
		llm.WithLogger(logger.With().Str("component", "llm").Logger()),
	)

	fhir := ehr.NewClient(cfg.FHIR)
	var profiles ehr.ProfileSource = fhir
	if store != nil {
		profiles = ehr.NewCachedSource(fhir, store, time.Duration(cfg.Redis.ProfileCacheTTLSeconds)*time.Second, logger)
	}
	records := ehr.NewAssembler(profiles, metrics, logger.With().Str("component", "ehr").Logger())

	var knowledgeAssembler *knowledge.Assembler
	if cfg.Knowledge.Enabled {
		var index knowledge.Index
		if cfg.Typesense.URL != "" {
			ts := knowledge.NewTypesenseIndex(cfg.Typesense)
			if err := ts.InitSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize knowledge index")
			}
			index = ts
		} else {
			log.Warn().Msg("TYPESENSE_URL not set, using in-memory knowledge index")
			index = knowledge.NewMemoryIndex()
		}
		knowledgeAssembler = knowledge.NewAssembler(
			index,
			knowledge.NewPubMed(cfg.PubMed),
			knowledge.NewLLMKeywordExtractor(provider),
			knowledge.AssemblerConfig{TopK: cfg.Knowledge.TopK, MinHits: cfg.Knowledge.MinHits},
			metrics,
			logger.With().Str("component", "knowledge").Logger(),
		)
	}

	symptomStore := symptoms.NewGormStore(db)
	adviceService := advice.NewService(advice.Deps{
		Pipeline:  pipeline,
		Records:   records,
		Knowledge: knowledgeAssembler,
		Recorder:  symptoms.NewTracker(symptomStore, metrics, logger.With().Str("component", "symptoms").Logger()),
		Metrics:   metrics,
		Logger:    logger.With().Str("component", "advice").Logger(),
	})

	chatManager := chat.NewManager(chat.Deps{
		Store:          chat.NewGormStore(db),
		Pipeline:       pipeline,
		Advisor:        adviceService,
		OfferThreshold: cfg.Chat.OfferThreshold,
		Metrics:        metrics,
		Logger:         logger.With().Str("component", "chat").Logger(),
	})

	placesLogger := logger.With().Str("component", "places").Logger()
	finder := places.NewFinder(pipeline, places.NewGoogleClient(cfg.Maps, store, placesLogger), metrics, placesLogger)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), observability.RequestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, cfg, routes.Dependencies{
		DB:        db,
		Advice:    adviceService,
		Chat:      chatManager,
		Analytics: symptoms.NewAnalytics(symptomStore),
		Finder:    finder,
		Profiles:  profiles,
		Patients:  fhir,
		Version:   version,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	adviceService.Wait()
	log.Info().Msg("Server stopped")
}
