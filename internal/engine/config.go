package engine

import (
	"net/http"
	"time"
)

// Config holds process-wide configuration, injected from main.
type Config struct {
	DatabaseURL string

	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMChunkTemperature   float64
	LLMCombineTemperature float64
	LLMChunkMaxTokens     int
	LLMCombineMaxTokens   int

	TranscriptionAPIKey string
	TranscriptionModel  string

	YTDLPBinaryPath  string
	YTDLPCookiesPath string
	RequireCookies   bool
	YTDLPVendored    bool // fetch a pinned yt-dlp release into a temp dir instead of resolving YTDLPBinaryPath/PATH

	FFmpegBinaryPath string

	ScratchRoot string

	ChunkWindowTokens int
	ChunkMarginTokens int

	MaxStreamsPerRun int
	ChunkWorkerPool  int

	CronSchedule string
	ChannelURL   string
	Timezone     string

	StatusAddr string

	ErrorReportingDSN string

	HTTPClient    *http.Client
	BrowserClient *BrowserClient // nil = stealth fallback disabled

	CacheTTL time.Duration
}

var cfg Config

// Cfg exposes the process configuration to sub-packages.
// Always points at the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c
	Cfg = &cfg
}
