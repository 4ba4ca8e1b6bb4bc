package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/wapuda/ytbatch/internal/config"
	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/logx"
	"github.com/wapuda/ytbatch/internal/sanitize"
	"github.com/wapuda/ytbatch/internal/ytdlp"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./cmd/localtest <url> <audio|video> [outdir]")
		return
	}
	_ = godotenv.Load()
	c := config.Load()
	logx.Setup(logx.FromEnv("localtest"))

	mode, err := jobs.ParseMode(os.Args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	outDir := "./out"
	if len(os.Args) > 3 {
		outDir = os.Args[3]
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := ytdlp.Runner{Binary: c.YtDlpBin, Grace: c.KillGrace}
	out, err := r.Download(ctx, os.Args[1], mode, outDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "download failed:", err)
		os.Exit(1)
	}
	fmt.Println("Saved:", out.Path)
	fmt.Println("Title:", out.Title())
	fmt.Println("Archive name:", sanitize.Sanitize(out.Title())+out.Ext())
}
