// Package summarizer produces a structured Markdown summary of a sitting's
// transcript, using a single LLM call when the transcript fits the model's
// context window and a bounded-parallel map-reduce otherwise.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kewiro/bunge-digest/internal/engine"
	"github.com/kewiro/bunge-digest/internal/engine/chunker"
)

// Result is the split output of a summarization run.
type Result struct {
	SummaryMD   string
	TimestampMD string
}

// Summarizer drives single-shot and map-reduce summarization.
type Summarizer struct {
	client  *Client
	limiter *rate.Limiter
}

// New builds a Summarizer. The limiter caps outbound LLM calls to avoid
// tripping provider rate limits during a chunk fan-out — the teacher's
// equivalent concurrency guard (hnjobs.go's 10-wide semaphore) bounds
// goroutines, this additionally paces request rate.
func New() *Summarizer {
	return &Summarizer{
		client:  NewClient(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Title and Date identify the sitting being summarized, substituted into
// the ${{TITLE}}/${{DATE}} prompt placeholders.
type SittingInfo struct {
	Title string
	Date  string
}

// Summarize chooses single-shot or map-reduce based on whether the
// transcript (after normalization) fits within window tokens, and returns
// the combined report split into summary and timeline sections.
func (s *Summarizer) Summarize(ctx context.Context, videoID, transcript string, info SittingInfo, window int) (Result, error) {
	transcript = engine.NormalizeTranscript(transcript)

	tokenCount, err := chunker.CountTokens(transcript)
	if err != nil {
		return Result{}, fmt.Errorf("count tokens: %w", err)
	}

	var raw string
	if tokenCount <= window {
		raw, err = s.summarizeSingleShot(ctx, transcript, info)
	} else {
		raw, err = s.summarizeMapReduce(ctx, videoID, transcript, info, window)
	}
	if err != nil {
		return Result{}, err
	}

	return splitTimeline(raw), nil
}

func (s *Summarizer) summarizeSingleShot(ctx context.Context, transcript string, info SittingInfo) (string, error) {
	user := substitute(singleShotPrompt, info) + transcript
	return s.callWithRetry(ctx, systemPrompt, user, engine.Cfg.LLMChunkTemperature, engine.Cfg.LLMChunkMaxTokens)
}

func (s *Summarizer) summarizeMapReduce(ctx context.Context, videoID, transcript string, info SittingInfo, window int) (string, error) {
	chunks, err := chunker.ChunkTranscript(transcript, window)
	if err != nil {
		return "", fmt.Errorf("chunk transcript: %w", err)
	}

	summaries, err := s.mapChunks(ctx, videoID, chunks)
	if err != nil {
		return "", err
	}

	return s.reduceChunks(ctx, summaries, info)
}

type cachedChunkSummary struct {
	Text string `json:"text"`
}

// mapChunks fans out one LLM call per chunk, bounded to engine.Cfg.ChunkWorkerPool
// concurrent requests, and collects results back in chunk order — the same
// indexed-channel pattern the teacher uses to fetch HN comments in parallel
// while preserving read order.
func (s *Summarizer) mapChunks(ctx context.Context, videoID string, chunks []chunker.Chunk) ([]string, error) {
	type result struct {
		idx  int
		text string
		err  error
	}

	workers := engine.Cfg.ChunkWorkerPool
	if workers <= 0 {
		workers = 4
	}

	ch := make(chan result, len(chunks))
	sem := make(chan struct{}, workers)

	for i, c := range chunks {
		go func(i int, c chunker.Chunk) {
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := s.summarizeChunk(ctx, videoID, c)
			ch <- result{idx: i, text: text, err: err}
		}(i, c)
	}

	out := make([]string, len(chunks))
	var firstErr error
	for range chunks {
		r := <-ch
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		out[r.idx] = r.text
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (s *Summarizer) summarizeChunk(ctx context.Context, videoID string, c chunker.Chunk) (string, error) {
	cacheKey := engine.CacheKey("chunk-summary", videoID, fmt.Sprintf("%d", c.Index))
	if cached, ok := engine.CacheLoadJSON[cachedChunkSummary](ctx, cacheKey); ok {
		return cached.Text, nil
	}

	user := chunkPrompt + c.Text

	engine.IncrLLMChunkCalls()
	text, err := s.callWithRetry(ctx, systemPrompt, user, engine.Cfg.LLMChunkTemperature, engine.Cfg.LLMChunkMaxTokens)
	if err != nil {
		return "", fmt.Errorf("summarize chunk %d: %w", c.Index, err)
	}

	engine.CacheStoreJSON(ctx, cacheKey, cachedChunkSummary{Text: text})
	return text, nil
}

func (s *Summarizer) reduceChunks(ctx context.Context, summaries []string, info SittingInfo) (string, error) {
	user := substitute(combinePrompt, info) + strings.Join(summaries, "\n\n---\n\n")
	engine.IncrLLMCombineCalls()
	return s.callWithRetry(ctx, systemPrompt, user, engine.Cfg.LLMCombineTemperature, engine.Cfg.LLMCombineMaxTokens)
}

const maxCompletionAttempts = 5

// callWithRetry honors an explicit provider retry-after hint when present,
// falling back to exponential backoff otherwise — mirroring the original
// chunk-summarization retry loop (attempt 429s against a parsed wait time,
// else 2^attempt seconds), capped at maxCompletionAttempts.
func (s *Summarizer) callWithRetry(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxCompletionAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, err := s.client.Complete(ctx, system, user, temperature, maxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err
		engine.IncrLLMErrors()

		var rle *rateLimitError
		wait := time.Duration(1<<uint(attempt)) * time.Second
		if errors.As(err, &rle) {
			if parsed, ok := engine.ParseRetryAfterMillis(rle.Body()); ok {
				wait = parsed
			}
		} else if !isTransient(err) {
			return "", err
		}

		if attempt == maxCompletionAttempts {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", maxCompletionAttempts, lastErr)
}

// isTransient reports whether a non-rate-limit error is worth retrying —
// anything other than a hard client-side failure (bad request, auth, etc).
func isTransient(err error) bool {
	msg := err.Error()
	if strings.Contains(msg, "(status 4") {
		return false
	}
	return strings.Contains(msg, "status 5") || strings.Contains(msg, "request")
}

func substitute(tmpl string, info SittingInfo) string {
	out := strings.ReplaceAll(tmpl, "${{TITLE}}", info.Title)
	out = strings.ReplaceAll(out, "${{DATE}}", info.Date)
	return out
}

// splitTimeline separates the "## Timeline" section (if present) from the
// rest of the report, matching the streams table's summary_md/timestamp_md
// columns.
func splitTimeline(raw string) Result {
	idx := strings.Index(raw, "## Timeline")
	if idx < 0 {
		return Result{SummaryMD: strings.TrimSpace(raw)}
	}
	return Result{
		SummaryMD:   strings.TrimSpace(raw[:idx]),
		TimestampMD: strings.TrimSpace(raw[idx:]),
	}
}
