package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// splitList parses a comma-separated env value into trimmed, non-empty items.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseEnv overlays Config fields from environment variables. A .env file in
// the working directory is loaded first if present (ignored otherwise).
// Unset variables leave the current value untouched.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("ENDPOINT_ADDR"); v != "" {
		config.EndpointAddr = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.JWTSecret = v
	}
	if v := os.Getenv("RUNNER_BEARER_TOKEN"); v != "" {
		config.RunnerToken = v
	}
	if v := os.Getenv("ADMIN_GROUP_IDS"); v != "" {
		config.AdminGroups = splitList(v)
	}
	if v := os.Getenv("AUDITOR_GROUP_IDS"); v != "" {
		config.AuditorGroups = splitList(v)
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		config.S3AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		config.S3SecretKey = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		config.S3Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		config.S3Region = v
	}
	if v := os.Getenv("S3_BASE_ENDPOINT"); v != "" {
		config.S3BaseEndpoint = v
	}
	if v := os.Getenv("STORAGE_BACKUPS_PREFIX"); v != "" {
		config.StoragePrefix = v
	}
	if v := os.Getenv("WRITE_SAS_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WriteSASTTL = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("DEFAULT_SAS_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.DefaultSASTTLHours = n
		}
	}
	if v := os.Getenv("MAX_SAS_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxSASTTLHours = n
		}
	}
	if v := os.Getenv("RUNNER_POLL_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			config.RunnerPollRPS = f
		}
	}
	if v := os.Getenv("RUNNER_POLL_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.RunnerPollBurst = n
		}
	}
}
