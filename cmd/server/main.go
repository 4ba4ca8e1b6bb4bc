package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/ytbatch/internal/config"
	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/logx"
	"github.com/wapuda/ytbatch/internal/orchestrator"
	"github.com/wapuda/ytbatch/internal/resolver"
	"github.com/wapuda/ytbatch/internal/server"
	"github.com/wapuda/ytbatch/internal/ytdlp"
)

func main() {
	_ = godotenv.Load()
	c := config.Load()

	logx.Setup(logx.FromEnv("server"))
	log.Info().Int("port", c.Port).Msg("server starting")

	if c.YTAPIKey == "" {
		log.Warn().Msg("YT_API_KEY is not set; /api/parse lookups will fail")
	}
	if err := ytdlp.CheckDependencies(c.YtDlpBin); err != nil {
		log.Warn().Err(err).Msg("downloads will fail until dependencies are installed")
	}
	if c.TmpDir != "" {
		if err := os.MkdirAll(c.TmpDir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", c.TmpDir).Msg("create temp root")
		}
	}

	runner := ytdlp.Runner{Binary: c.YtDlpBin, Grace: c.KillGrace}
	orch := orchestrator.New(runner, jobs.NewRegistry(c.JobTTL), orchestrator.Options{
		TempRoot: c.TmpDir,
		Grace:    c.KillGrace,
	})
	srv := server.New(c, orch, resolver.New(c.YTAPIKey, c.YTAPIBase))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
		return
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", c.ShutdownTimeout).Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete; in-flight downloads were cut")
	}
}
