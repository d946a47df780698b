package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kewiro/bunge-digest/internal/engine/datastore"
	"github.com/kewiro/bunge-digest/internal/engine/downloader"
	"github.com/kewiro/bunge-digest/internal/engine/scraper"
	"github.com/kewiro/bunge-digest/internal/engine/summarizer"
)

// fakeStore is an in-memory streamStore: everything not yet upserted is "new".
type fakeStore struct {
	existing map[string]bool
	upserted []datastore.Stream
}

func newFakeStore(existing ...string) *fakeStore {
	s := &fakeStore{existing: make(map[string]bool)}
	for _, id := range existing {
		s.existing[id] = true
	}
	return s
}

func (s *fakeStore) FilterNew(ctx context.Context, candidateIDs []string) ([]string, error) {
	var out []string
	for _, id := range candidateIDs {
		if !s.existing[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertWithSummary(ctx context.Context, st datastore.Stream) error {
	s.upserted = append(s.upserted, st)
	s.existing[st.VideoID] = true
	return nil
}

// fakeDownloader returns canned metadata and a fixed audio path; optionally
// fails DownloadAudio for specific video IDs to simulate a per-stream failure.
type fakeDownloader struct {
	title       string
	timestamp   string // YYYYMMDD
	failAudioID map[string]bool
}

func (d *fakeDownloader) GetMetadata(ctx context.Context, url string) (*downloader.StreamMetadata, error) {
	return &downloader.StreamMetadata{UploadDate: d.timestamp, Title: d.title}, nil
}

func (d *fakeDownloader) DownloadAudio(ctx context.Context, url, format, outputTemplate string) (string, error) {
	for id := range d.failAudioID {
		if strings.HasSuffix(url, id) {
			return "", fmt.Errorf("fake download failure for %s", id)
		}
	}
	return outputTemplate, nil
}

// fakeSegmenter returns a fixed number of segment paths.
type fakeSegmenter struct {
	segmentCount int
}

func (s *fakeSegmenter) Segment(ctx context.Context, audioPath, outDir string, segmentSeconds int) ([]string, error) {
	segs := make([]string, s.segmentCount)
	for i := range segs {
		segs[i] = fmt.Sprintf("%s/segment-%d.mp3", outDir, i)
	}
	return segs, nil
}

// fakeTranscriber returns a transcript that names how many segments it was handed.
type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, segmentPaths []string) (string, error) {
	return fmt.Sprintf("transcript with %d segments", len(segmentPaths)), nil
}

// fakeSummarizer records the number of Summarize calls ("chunk count" as
// seen by the orchestrator is opaque past this boundary; it just returns a
// canned result).
type fakeSummarizer struct {
	calls int
}

func (s *fakeSummarizer) Summarize(ctx context.Context, videoID, transcript string, info summarizer.SittingInfo, window int) (summarizer.Result, error) {
	s.calls++
	return summarizer.Result{SummaryMD: "summary for " + videoID, TimestampMD: "- 00:00:00 — start"}, nil
}

func fakeFetchStreams(candidates ...scraper.CandidateStream) func(context.Context, string) ([]scraper.CandidateStream, error) {
	return func(ctx context.Context, channelURL string) ([]scraper.CandidateStream, error) {
		return candidates, nil
	}
}
