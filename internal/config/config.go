// Package config reads the server settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/proc"
	"github.com/wapuda/ytbatch/internal/resolver"
	"github.com/wapuda/ytbatch/internal/ytdlp"
)

type Config struct {
	Port            int
	YTAPIKey        string
	YTAPIBase       string
	TmpDir          string // parent of session dirs; "" = os.TempDir()
	YtDlpBin        string
	KillGrace       time.Duration
	JobTTL          time.Duration
	GinMode         string
	ShutdownTimeout time.Duration
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
func mustDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	// bare numbers are milliseconds
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

func Load() Config {
	return Config{
		Port:            mustInt("PORT", 3000),
		YTAPIKey:        strings.TrimSpace(getenv("YT_API_KEY", "")),
		YTAPIBase:       strings.TrimRight(getenv("YT_API_BASE", resolver.DefaultBase), "/"),
		TmpDir:          getenv("TMP_DIR", ""),
		YtDlpBin:        getenv("YTDLP_BIN", ytdlp.DefaultBinary),
		KillGrace:       mustDuration("KILL_GRACE", proc.DefaultGrace),
		JobTTL:          mustDuration("JOB_TTL", jobs.DefaultTTL),
		GinMode:         getenv("GIN_MODE", "release"),
		ShutdownTimeout: mustDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func (c Config) Addr() string { return ":" + strconv.Itoa(c.Port) }
