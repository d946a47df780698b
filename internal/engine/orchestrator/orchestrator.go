// Package orchestrator runs the end-to-end pipeline for one scheduler tick:
// scrape the channel, filter to unseen streams, and process each one
// sequentially through download, segmentation, transcription, chunking,
// summarization, and persistence.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kewiro/bunge-digest/internal/engine"
	"github.com/kewiro/bunge-digest/internal/engine/audiotool"
	"github.com/kewiro/bunge-digest/internal/engine/datastore"
	"github.com/kewiro/bunge-digest/internal/engine/downloader"
	"github.com/kewiro/bunge-digest/internal/engine/scraper"
	"github.com/kewiro/bunge-digest/internal/engine/summarizer"
	"github.com/kewiro/bunge-digest/internal/engine/transcriber"
)

// streamStore is the subset of *datastore.Store that Run/processStream call.
type streamStore interface {
	FilterNew(ctx context.Context, candidateIDs []string) ([]string, error)
	UpsertWithSummary(ctx context.Context, s datastore.Stream) error
}

// streamDownloader is the subset of *downloader.Downloader that
// processStream calls.
type streamDownloader interface {
	GetMetadata(ctx context.Context, url string) (*downloader.StreamMetadata, error)
	DownloadAudio(ctx context.Context, url, format, outputTemplate string) (string, error)
}

// segmenter is the subset of *audiotool.Segmenter that processStream calls.
type segmenter interface {
	Segment(ctx context.Context, audioPath, outDir string, segmentSeconds int) ([]string, error)
}

// transcriberFn is the subset of *transcriber.Transcriber that processStream calls.
type transcriberFn interface {
	Transcribe(ctx context.Context, segmentPaths []string) (string, error)
}

// summarizerFn is the subset of *summarizer.Summarizer that processStream calls.
type summarizerFn interface {
	Summarize(ctx context.Context, videoID, transcript string, info summarizer.SittingInfo, window int) (summarizer.Result, error)
}

// Orchestrator wires every pipeline component together for one run. It
// depends on narrow interfaces rather than the concrete collaborator
// types so Run/processStream can be driven by fakes in tests.
type Orchestrator struct {
	store       streamStore
	dl          streamDownloader
	seg         segmenter
	sum         summarizerFn
	tr          transcriberFn
	channelURL  string
	scratchRoot string
	maxStreams  int
	window      int

	// fetchStreams defaults to scraper.FetchStreams; overridden in tests
	// with a fake to drive Run without a network call.
	fetchStreams func(ctx context.Context, channelURL string) ([]scraper.CandidateStream, error)
}

// New assembles an Orchestrator from already-constructed components.
func New(store *datastore.Store, dl *downloader.Downloader, seg *audiotool.Segmenter, sum *summarizer.Summarizer, tr *transcriber.Transcriber, channelURL, scratchRoot string, maxStreams, window int) *Orchestrator {
	return &Orchestrator{
		store:        store,
		dl:           dl,
		seg:          seg,
		sum:          sum,
		tr:           tr,
		channelURL:   channelURL,
		scratchRoot:  scratchRoot,
		maxStreams:   maxStreams,
		window:       window,
		fetchStreams: scraper.FetchStreams,
	}
}

// RunReport summarizes the outcome of one pipeline run.
type RunReport struct {
	Candidates int
	New        int
	Processed  int
	Failed     int
}

// Run executes one full pipeline pass: discover candidates, filter to
// unseen video IDs, cap at maxStreams, process each sequentially (most
// recent first, as the channel listing already orders them), and sweep any
// scratch directories left behind by a crashed prior run before starting.
func (o *Orchestrator) Run(ctx context.Context) (RunReport, error) {
	o.sweepStaleScratch()

	candidates, err := o.fetchStreams(ctx, o.channelURL)
	if err != nil {
		return RunReport{}, fmt.Errorf("fetch streams: %w", err)
	}

	ids := make([]string, len(candidates))
	byID := make(map[string]scraper.CandidateStream, len(candidates))
	for i, c := range candidates {
		ids[i] = c.VideoID
		byID[c.VideoID] = c
	}

	newIDs, err := o.store.FilterNew(ctx, ids)
	if err != nil {
		return RunReport{}, fmt.Errorf("filter new: %w", err)
	}
	if o.maxStreams > 0 && len(newIDs) > o.maxStreams {
		newIDs = newIDs[:o.maxStreams]
	}

	report := RunReport{Candidates: len(candidates), New: len(newIDs)}
	for _, id := range newIDs {
		candidate := byID[id]
		if err := o.processStream(ctx, candidate); err != nil {
			slog.Error("stream processing failed", slog.String("video_id", id), slog.Any("error", err))
			engine.ReportError(err, map[string]string{"video_id": id, "stage": "process_stream"})
			engine.IncrStreamsFailed()
			report.Failed++
			continue
		}
		engine.IncrStreamsProcessed()
		report.Processed++
	}

	return report, nil
}

// processStream runs one candidate through the full per-stream pipeline.
// Its scratch directory is isolated by video ID and removed on success;
// on failure it is left in place for the next run's crash sweep to retry
// from a clean directory rather than reusing a possibly-partial download.
func (o *Orchestrator) processStream(ctx context.Context, c scraper.CandidateStream) error {
	scratchDir := filepath.Join(o.scratchRoot, c.VideoID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	meta, err := o.dl.GetMetadata(ctx, c.URL())
	if err != nil {
		return fmt.Errorf("resolve metadata: %w", err)
	}
	timestamp, err := meta.ResolveTimestamp()
	if err != nil {
		return fmt.Errorf("resolve timestamp: %w", err)
	}
	if c.Title == "" {
		// degraded DOM-fallback candidates carry no reliable title.
		c.Title = meta.Title
	}

	outputTemplate := downloader.OutputTemplate(scratchDir, "mp3")
	audioPath, err := o.dl.DownloadAudio(ctx, c.URL(), "mp3", outputTemplate)
	if err != nil {
		return fmt.Errorf("download audio: %w", err)
	}

	segmentDir := filepath.Join(scratchDir, "segments")
	segments, err := o.seg.Segment(ctx, audioPath, segmentDir, 0)
	if err != nil {
		return fmt.Errorf("segment audio: %w", err)
	}

	transcript, err := o.tr.Transcribe(ctx, segments)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	result, err := o.sum.Summarize(ctx, c.VideoID, transcript, summarizer.SittingInfo{
		Title: c.Title,
		Date:  timestamp.Format("2006-01-02"),
	}, o.window)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	stream := datastore.Stream{
		VideoID:         c.VideoID,
		Title:           c.Title,
		ViewCount:       c.ViewCount,
		StreamTimestamp: timestamp,
		Duration:        c.Duration,
		SummaryMD:       result.SummaryMD,
		TimestampMD:     result.TimestampMD,
	}
	if err := o.store.UpsertWithSummary(ctx, stream); err != nil {
		return fmt.Errorf("persist stream: %w", err)
	}

	if err := os.RemoveAll(scratchDir); err != nil {
		slog.Warn("scratch cleanup failed", slog.String("video_id", c.VideoID), slog.Any("error", err))
	}
	return nil
}

// sweepStaleScratch removes scratch directories left behind by a crash
// mid-stream on a prior run. Streams that failed are re-downloaded from
// scratch rather than resumed from a partial state.
func (o *Orchestrator) sweepStaleScratch() {
	entries, err := os.ReadDir(o.scratchRoot)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(o.scratchRoot, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("crash sweep: failed to remove stale scratch dir", slog.String("path", path), slog.Any("error", err))
		} else {
			slog.Info("crash sweep: removed stale scratch dir", slog.String("path", path))
		}
	}
}
