package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	AllowedOrigins            []string
	Environment               string
	JWTSecret                 string
	JWTRefreshSecret          string
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	Database                  DatabaseConfig
	LLM                       LLMConfig
	FHIR                      FHIRConfig
	Redis                     RedisConfig
	Typesense                 TypesenseConfig
	PubMed                    PubMedConfig
	Maps                      MapsConfig
	Knowledge                 KnowledgeConfig
	Chat                      ChatConfig
}

// DatabaseConfig holds database connection details. DSN stays empty when no
// Host is set.
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// LLMConfig holds the completion provider settings.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	MaxAttempts    int
	TimeoutSeconds int
	Temperature    float32
	MaxTokens      int
}

// FHIRConfig points at the patient-record service.
type FHIRConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// RedisConfig holds cache connection details. An empty Addr disables caching.
type RedisConfig struct {
	Addr                   string
	Password               string
	DB                     int
	ProfileCacheTTLSeconds int
}

// TypesenseConfig holds the knowledge index connection. An empty URL selects the
// in-memory index.
type TypesenseConfig struct {
	URL    string
	APIKey string
}

// PubMedConfig holds the literature search settings.
type PubMedConfig struct {
	BaseURL     string
	MaxArticles int
}

// MapsConfig holds the place search settings.
type MapsConfig struct {
	APIKey       string
	BaseURL      string
	RadiusMeters int
	MaxResults   int
}

// KnowledgeConfig controls knowledge-grounded advice.
type KnowledgeConfig struct {
	Enabled bool
	TopK    int
	MinHits int
}

// ChatConfig controls the conversational analysis gate.
type ChatConfig struct {
	OfferThreshold float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "symptoms"),
	}
	if dbConfig.Host != "" {
		dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)
	}

	jwtExpMinutes, err := getInt("JWT_EXPIRATION_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	jwtRefreshExpHours, err := getInt("JWT_REFRESH_EXPIRATION_HOURS", 168) // 7 days
	if err != nil {
		return nil, err
	}

	llmConfig, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	fhirTimeout, err := getInt("FHIR_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	profileTTL, err := getInt("PROFILE_CACHE_TTL_SECONDS", 900)
	if err != nil {
		return nil, err
	}

	pubmedMax, err := getInt("PUBMED_MAX_ARTICLES", 20)
	if err != nil {
		return nil, err
	}

	mapsRadius, err := getInt("MAPS_RADIUS_METERS", 15000)
	if err != nil {
		return nil, err
	}
	mapsMax, err := getInt("MAPS_MAX_RESULTS", 5)
	if err != nil {
		return nil, err
	}

	knowledgeEnabled, err := getBool("KNOWLEDGE_ENABLED", false)
	if err != nil {
		return nil, err
	}
	topK, err := getInt("KNOWLEDGE_TOP_K", 3)
	if err != nil {
		return nil, err
	}
	minHits, err := getInt("KNOWLEDGE_MIN_HITS", 2)
	if err != nil {
		return nil, err
	}

	threshold, err := strconv.ParseFloat(getEnv("CHAT_OFFER_THRESHOLD", "0.8"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_OFFER_THRESHOLD: %w", err)
	}
	if threshold < 0 || threshold >= 1 {
		return nil, fmt.Errorf("invalid CHAT_OFFER_THRESHOLD: %v must be in [0, 1)", threshold)
	}

	return &Config{
		Port:                      getEnv("PORT", "8000"),
		AllowedOrigins:            splitList(getEnv("ALLOWED_ORIGINS", "*")),
		Environment:               getEnv("APP_ENV", "development"),
		JWTSecret:                 getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		Database:                  dbConfig,
		LLM:                       llmConfig,
		FHIR: FHIRConfig{
			BaseURL:        getEnv("FHIR_BASE_URL", "https://hapi.fhir.org/baseR4"),
			TimeoutSeconds: fhirTimeout,
		},
		Redis: RedisConfig{
			Addr:                   getEnv("REDIS_ADDR", ""),
			Password:               getEnv("REDIS_PASSWORD", ""),
			DB:                     redisDB,
			ProfileCacheTTLSeconds: profileTTL,
		},
		Typesense: TypesenseConfig{
			URL:    getEnv("TYPESENSE_URL", ""),
			APIKey: getEnv("TYPESENSE_API_KEY", ""),
		},
		PubMed: PubMedConfig{
			BaseURL:     getEnv("PUBMED_BASE_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"),
			MaxArticles: pubmedMax,
		},
		Maps: MapsConfig{
			APIKey:       getEnv("GOOGLE_MAPS_API_KEY", ""),
			BaseURL:      getEnv("GOOGLE_MAPS_BASE_URL", "https://maps.googleapis.com/maps/api"),
			RadiusMeters: mapsRadius,
			MaxResults:   mapsMax,
		},
		Knowledge: KnowledgeConfig{
			Enabled: knowledgeEnabled,
			TopK:    topK,
			MinHits: minHits,
		},
		Chat: ChatConfig{
			OfferThreshold: threshold,
		},
	}, nil
}

func loadLLMConfig() (LLMConfig, error) {
	maxAttempts, err := getInt("LLM_MAX_ATTEMPTS", 3)
	if err != nil {
		return LLMConfig{}, err
	}
	if maxAttempts < 1 {
		return LLMConfig{}, fmt.Errorf("invalid LLM_MAX_ATTEMPTS: %d must be at least 1", maxAttempts)
	}
	timeout, err := getInt("LLM_TIMEOUT_SECONDS", 60)
	if err != nil {
		return LLMConfig{}, err
	}
	maxTokens, err := getInt("LLM_MAX_TOKENS", 800)
	if err != nil {
		return LLMConfig{}, err
	}
	temperature, err := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.5"), 32)
	if err != nil {
		return LLMConfig{}, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}

	return LLMConfig{
		APIKey:         getEnv("OPENROUTER_API_KEY", ""),
		BaseURL:        getEnv("OPENROUTER_BASE", "https://openrouter.ai/api/v1"),
		Model:          getEnv("LLM_MODEL", "meta-llama/llama-3.3-70b-instruct:free"),
		Referer:        getEnv("APP_REFERER", "http://localhost:8000"),
		Title:          getEnv("APP_TITLE", "Symptom Assistant"),
		MaxAttempts:    maxAttempts,
		TimeoutSeconds: timeout,
		Temperature:    float32(temperature),
		MaxTokens:      maxTokens,
	}, nil
}

// UsesDatabase reports whether a relational database is configured.
func (c *Config) UsesDatabase() bool {
	return c.Database.DSN != ""
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, strconv.Itoa(defaultValue))
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, strconv.FormatBool(defaultValue))
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
