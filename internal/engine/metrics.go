package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// metrics tracks operational counters across the pipeline.
var metrics struct {
	ScrapeRequests       atomic.Int64
	ScrapeErrors         atomic.Int64
	DownloadRequests     atomic.Int64
	DownloadErrors       atomic.Int64
	SegmentRequests      atomic.Int64
	SegmentErrors        atomic.Int64
	TranscriptionCalls   atomic.Int64
	TranscriptionErrors  atomic.Int64
	LLMChunkCalls        atomic.Int64
	LLMCombineCalls      atomic.Int64
	LLMErrors            atomic.Int64
	StreamsProcessed     atomic.Int64
	StreamsFailed        atomic.Int64
	StreamsSkipped       atomic.Int64
	SchedulerTicksDropped atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"scrape_requests":         metrics.ScrapeRequests.Load(),
		"scrape_errors":           metrics.ScrapeErrors.Load(),
		"download_requests":       metrics.DownloadRequests.Load(),
		"download_errors":         metrics.DownloadErrors.Load(),
		"segment_requests":        metrics.SegmentRequests.Load(),
		"segment_errors":          metrics.SegmentErrors.Load(),
		"transcription_calls":     metrics.TranscriptionCalls.Load(),
		"transcription_errors":    metrics.TranscriptionErrors.Load(),
		"llm_chunk_calls":         metrics.LLMChunkCalls.Load(),
		"llm_combine_calls":       metrics.LLMCombineCalls.Load(),
		"llm_errors":              metrics.LLMErrors.Load(),
		"streams_processed":       metrics.StreamsProcessed.Load(),
		"streams_failed":          metrics.StreamsFailed.Load(),
		"streams_skipped":         metrics.StreamsSkipped.Load(),
		"scheduler_ticks_dropped": metrics.SchedulerTicksDropped.Load(),
		"cache_hits":              hits,
		"cache_misses":            misses,
	}
}

// FormatMetrics returns metrics as a simple text format for the status endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	keys := []string{
		"scrape_requests", "scrape_errors",
		"download_requests", "download_errors",
		"segment_requests", "segment_errors",
		"transcription_calls", "transcription_errors",
		"llm_chunk_calls", "llm_combine_calls", "llm_errors",
		"streams_processed", "streams_failed", "streams_skipped",
		"scheduler_ticks_dropped",
		"cache_hits", "cache_misses",
	}
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

func IncrScrapeRequests()        { metrics.ScrapeRequests.Add(1) }
func IncrScrapeErrors()          { metrics.ScrapeErrors.Add(1) }
func IncrDownloadRequests()      { metrics.DownloadRequests.Add(1) }
func IncrDownloadErrors()        { metrics.DownloadErrors.Add(1) }
func IncrSegmentRequests()       { metrics.SegmentRequests.Add(1) }
func IncrSegmentErrors()         { metrics.SegmentErrors.Add(1) }
func IncrTranscriptionCalls()    { metrics.TranscriptionCalls.Add(1) }
func IncrTranscriptionErrors()   { metrics.TranscriptionErrors.Add(1) }
func IncrLLMChunkCalls()         { metrics.LLMChunkCalls.Add(1) }
func IncrLLMCombineCalls()       { metrics.LLMCombineCalls.Add(1) }
func IncrLLMErrors()             { metrics.LLMErrors.Add(1) }
func IncrStreamsProcessed()      { metrics.StreamsProcessed.Add(1) }
func IncrStreamsFailed()         { metrics.StreamsFailed.Add(1) }
func IncrStreamsSkipped()        { metrics.StreamsSkipped.Add(1) }
func IncrSchedulerTicksDropped() { metrics.SchedulerTicksDropped.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
