// bunge-digest discovers newly archived Parliament of Kenya YouTube
// livestreams, transcribes and summarizes each sitting with an LLM, and
// persists the result to Postgres, on a cron schedule.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kewiro/bunge-digest/internal/engine"
	"github.com/kewiro/bunge-digest/internal/engine/audiotool"
	"github.com/kewiro/bunge-digest/internal/engine/datastore"
	"github.com/kewiro/bunge-digest/internal/engine/downloader"
	"github.com/kewiro/bunge-digest/internal/engine/env"
	"github.com/kewiro/bunge-digest/internal/engine/orchestrator"
	"github.com/kewiro/bunge-digest/internal/engine/scheduler"
	"github.com/kewiro/bunge-digest/internal/engine/summarizer"
	"github.com/kewiro/bunge-digest/internal/engine/transcriber"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := initEngine()
	defer engine.FlushErrorReporting(2 * time.Second)

	store, err := datastore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("datastore connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	if cfg.RequireCookies && cfg.YTDLPCookiesPath == "" {
		slog.Error("REQUIRE_YTDLP_COOKIES is set but YTDLP_COOKIES_PATH is empty")
		os.Exit(1)
	}
	var dl *downloader.Downloader
	if cfg.YTDLPVendored {
		dl, err = downloader.NewVendoredDownloader(ctx, cfg.YTDLPCookiesPath)
	} else {
		dl, err = downloader.NewDownloaderWithCookies(cfg.YTDLPBinaryPath, cfg.YTDLPCookiesPath)
	}
	if err != nil {
		slog.Error("downloader init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer dl.Close()

	seg, err := audiotool.NewSegmenter(cfg.FFmpegBinaryPath)
	if err != nil {
		slog.Error("segmenter init failed", slog.Any("error", err))
		os.Exit(1)
	}

	sum := summarizer.New()
	tr := transcriber.New()

	orch := orchestrator.New(store, dl, seg, sum, tr, cfg.ChannelURL, cfg.ScratchRoot, cfg.MaxStreamsPerRun, cfg.ChunkWindowTokens)

	sched, err := scheduler.New(cfg.CronSchedule, cfg.Timezone, orch.Run, cfg.StatusAddr)
	if err != nil {
		slog.Error("scheduler init failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting bunge-digest",
		slog.String("version", version),
		slog.String("schedule", cfg.CronSchedule),
		slog.String("status_addr", cfg.StatusAddr),
	)

	if err := sched.Start(ctx); err != nil {
		slog.Error("scheduler stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("bunge-digest shut down cleanly")
}

func initEngine() engine.Config {
	c := engine.Config{
		DatabaseURL: env.Require("DATABASE_URL"),

		LLMAPIKey:             env.Require("LLM_API_KEY"),
		LLMAPIKeyFallbacks:    env.List("LLM_API_KEY_FALLBACKS", nil),
		LLMAPIBase:            env.Str("LLM_API_BASE", "https://api.openai.com/v1"),
		LLMModel:              env.Str("LLM_MODEL", "gpt-4o"),
		LLMChunkTemperature:   env.Float("LLM_CHUNK_TEMPERATURE", 0.2),
		LLMCombineTemperature: env.Float("LLM_COMBINE_TEMPERATURE", 0.2),
		LLMChunkMaxTokens:     env.Int("LLM_CHUNK_MAX_TOKENS", 2048),
		LLMCombineMaxTokens:   env.Int("LLM_COMBINE_MAX_TOKENS", 4096),

		TranscriptionAPIKey: env.Str("TRANSCRIPTION_API_KEY", env.Str("LLM_API_KEY", "")),
		TranscriptionModel:  env.Str("TRANSCRIPTION_MODEL", "whisper-1"),

		YTDLPBinaryPath:  env.Str("YTDLP_BINARY_PATH", ""),
		YTDLPCookiesPath: env.Str("YTDLP_COOKIES_PATH", ""),
		RequireCookies:   env.Bool("REQUIRE_YTDLP_COOKIES", false),
		YTDLPVendored:    env.Bool("YTDLP_VENDORED", false),

		FFmpegBinaryPath: env.Str("FFMPEG_BINARY_PATH", ""),

		ScratchRoot: env.Str("SCRATCH_ROOT", "/tmp/bunge-digest"),

		ChunkWindowTokens: env.Int("CHUNK_WINDOW_TOKENS", 0), // 0 => resolved below to the default 25%-margin window
		ChunkMarginTokens: env.Int("CHUNK_MARGIN_TOKENS", 0),

		MaxStreamsPerRun: env.Int("MAX_STREAMS_TO_PROCESS", 3),
		ChunkWorkerPool:  env.Int("CHUNK_WORKER_POOL", 4),

		CronSchedule: env.Str("CRON_SCHEDULE", "0 0 */4 * * *"),
		ChannelURL:   env.Str("CHANNEL_URL", "https://www.youtube.com/@ParliamentofKenyaChannel/streams"),
		Timezone:     env.Str("TIMEZONE", "Africa/Nairobi"),

		StatusAddr: env.Str("STATUS_ADDR", ":8080"),

		ErrorReportingDSN: env.Str("ERROR_REPORTING_DSN", ""),

		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},

		CacheTTL: env.Duration("CACHE_TTL", 24*time.Hour),
	}

	if c.ChunkWindowTokens <= 0 {
		c.ChunkWindowTokens = 128_000 - 128_000/4
	}

	if env.Bool("SCRAPER_STEALTH_FALLBACK", true) {
		bc, err := engine.NewBrowserClient()
		if err != nil {
			slog.Warn("browser client init failed, stealth fallback disabled", slog.Any("error", err))
		} else {
			c.BrowserClient = bc
			slog.Info("stealth browser client initialized")
		}
	}

	engine.Init(c)
	engine.InitCache(env.Str("REDIS_URL", ""), c.CacheTTL, env.Int("CACHE_MAX_ENTRIES", 2000), env.Duration("CACHE_CLEANUP_INTERVAL", 10*time.Minute))

	if c.ErrorReportingDSN != "" {
		if err := engine.InitErrorReporting(c.ErrorReportingDSN); err != nil {
			slog.Warn("error reporting init failed", slog.Any("error", err))
		} else {
			slog.Info("error reporting initialized")
		}
	}

	return c
}
