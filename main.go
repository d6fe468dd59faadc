package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/voteguard/voteguard/config"
	"github.com/voteguard/voteguard/server"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	cfg := config.DefaultConfig()
	loadConfigFromEnv(cfg)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: os.Getenv("VOTEGUARD_ENV"),
		}); err != nil {
			log.Printf("Sentry initialization failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	srv, err := server.NewServer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	defer srv.Close()

	srv.StartWithErrorHandling()
}

// loadConfigFromEnv loads configuration from environment variables
func loadConfigFromEnv(cfg *config.Config) {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}

	if dir := os.Getenv("UPLOADS_DIR"); dir != "" {
		cfg.UploadsDir = dir
	}

	if path := os.Getenv("AUDIT_LOG_PATH"); path != "" {
		cfg.AuditLogPath = path
	}

	if user := os.Getenv("ADMIN_USER"); user != "" {
		cfg.AdminUser = user
	}

	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		cfg.AdminPassword = password
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.SentryDSN = dsn
	}

	// Database configuration
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}

	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.Database.SQLitePath = path
	}

	// Rate limiting
	if rps := os.Getenv("ANALYZE_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.AnalyzeRPS = v
		}
	}

	if burst := os.Getenv("ANALYZE_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.AnalyzeBurst = v
		}
	}

	// Detection configuration
	if contamination := os.Getenv("GHOST_CONTAMINATION"); contamination != "" {
		if v, err := strconv.ParseFloat(contamination, 64); err == nil {
			cfg.Detection.GhostContamination = v
		}
	}

	if threshold := os.Getenv("NAME_SIMILARITY_THRESHOLD"); threshold != "" {
		if v, err := strconv.Atoi(threshold); err == nil {
			cfg.Detection.NameSimilarityThreshold = v
		}
	}

	if threshold := os.Getenv("GHOST_AGE_THRESHOLD"); threshold != "" {
		if v, err := strconv.Atoi(threshold); err == nil {
			cfg.Detection.GhostAgeThreshold = v
		}
	}

	if seed := os.Getenv("DETECTION_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Detection.Seed = v
		}
	}

	if statistical := os.Getenv("ENABLE_STATISTICAL"); statistical != "" {
		cfg.Detection.EnableStatistical = statistical == "true"
	}

	if phonetic := os.Getenv("PHONETIC_MATCH"); phonetic != "" {
		cfg.Detection.PhoneticMatch = phonetic == "true"
	}
}
