package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kewiro/bunge-digest/internal/engine/datastore"
	"github.com/kewiro/bunge-digest/internal/engine/scraper"
)

func newTestOrchestrator(t *testing.T, st *fakeStore, dl *fakeDownloader, seg *fakeSegmenter, sum *fakeSummarizer, candidates []scraper.CandidateStream, maxStreams int) *Orchestrator {
	return &Orchestrator{
		store:        st,
		dl:           dl,
		seg:          seg,
		sum:          sum,
		tr:           fakeTranscriber{},
		channelURL:   "https://www.youtube.com/@ParliamentofKenyaChannel/streams",
		scratchRoot:  t.TempDir(),
		maxStreams:   maxStreams,
		window:       25000,
		fetchStreams: fakeFetchStreams(candidates...),
	}
}

func TestSweepStaleScratch_RemovesLeftoverDirs(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "abc123")
	if err := os.MkdirAll(filepath.Join(stale, "segments"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(stale, "raw.mp3"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	o := &Orchestrator{scratchRoot: root}
	o.sweepStaleScratch()

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read scratch root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected scratch root to be empty after sweep, got %v", entries)
	}
}

func TestSweepStaleScratch_MissingRootIsNotFatal(t *testing.T) {
	o := &Orchestrator{scratchRoot: filepath.Join(t.TempDir(), "does-not-exist")}
	o.sweepStaleScratch() // must not panic
}

func TestRun_HouseDerivationFromTitle(t *testing.T) {
	candidates := []scraper.CandidateStream{
		{VideoID: "aaa111", Title: "National Assembly | Tue 24 Jun 2025 | Afternoon", ViewCount: "1,000 views", Duration: "1:00:00"},
		{VideoID: "bbb222", Title: "Senate | Thu 19 Jun 2025 | Afternoon", ViewCount: "2,000 views", Duration: "2:00:00"},
	}
	st := newFakeStore()
	dl := &fakeDownloader{timestamp: "20250624"}
	seg := &fakeSegmenter{segmentCount: 1}
	sum := &fakeSummarizer{}

	o := newTestOrchestrator(t, st, dl, seg, sum, candidates, 0)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 2 {
		t.Fatalf("report.Processed = %d, want 2", report.Processed)
	}
	if len(st.upserted) != 2 {
		t.Fatalf("upserted %d streams, want 2", len(st.upserted))
	}

	byID := map[string]datastore.Stream{}
	for _, s := range st.upserted {
		byID[s.VideoID] = s
	}
	if got := datastore.DeriveHouse(byID["aaa111"].Title); got != datastore.HouseNationalAssembly {
		t.Errorf("house(aaa111) = %q, want %q", got, datastore.HouseNationalAssembly)
	}
	if got := datastore.DeriveHouse(byID["bbb222"].Title); got != datastore.HouseSenate {
		t.Errorf("house(bbb222) = %q, want %q", got, datastore.HouseSenate)
	}
	for _, s := range st.upserted {
		if s.SummaryMD == "" {
			t.Errorf("stream %s has empty SummaryMD", s.VideoID)
		}
		if s.IsPublished {
			t.Errorf("stream %s IsPublished = true, want false (default)", s.VideoID)
		}
	}
}

func TestRun_JointSessionTitleDerivesHouseAll(t *testing.T) {
	candidates := []scraper.CandidateStream{
		{VideoID: "ccc333", Title: "Joint Session of the National Assembly and the Senate", ViewCount: "500 views", Duration: "3:00:00"},
	}
	st := newFakeStore()
	dl := &fakeDownloader{timestamp: "20250701"}
	seg := &fakeSegmenter{segmentCount: 1}
	sum := &fakeSummarizer{}

	o := newTestOrchestrator(t, st, dl, seg, sum, candidates, 0)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(st.upserted) != 1 {
		t.Fatalf("upserted %d streams, want 1", len(st.upserted))
	}
	if got := datastore.DeriveHouse(st.upserted[0].Title); got != datastore.HouseAll {
		t.Errorf("house(joint session title) = %q, want %q", got, datastore.HouseAll)
	}
}

func TestRun_SkipsAlreadyPresentCandidates(t *testing.T) {
	candidates := []scraper.CandidateStream{
		{VideoID: "seen111", Title: "National Assembly | Mon", ViewCount: "1 view", Duration: "1:00:00"},
		{VideoID: "new222", Title: "Senate | Tue", ViewCount: "2 views", Duration: "1:00:00"},
	}
	st := newFakeStore("seen111")
	dl := &fakeDownloader{timestamp: "20250624"}
	seg := &fakeSegmenter{segmentCount: 1}
	sum := &fakeSummarizer{}

	o := newTestOrchestrator(t, st, dl, seg, sum, candidates, 0)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.New != 1 {
		t.Errorf("report.New = %d, want 1", report.New)
	}
	if len(st.upserted) != 1 || st.upserted[0].VideoID != "new222" {
		t.Fatalf("expected only new222 to be upserted, got %+v", st.upserted)
	}
}

func TestRun_MultiStreamEachSummarizedOnce(t *testing.T) {
	candidates := []scraper.CandidateStream{
		{VideoID: "s1", Title: "National Assembly | Mon", ViewCount: "1 view", Duration: "1:00:00"},
		{VideoID: "s2", Title: "National Assembly | Tue", ViewCount: "1 view", Duration: "1:00:00"},
		{VideoID: "s3", Title: "National Assembly | Wed", ViewCount: "1 view", Duration: "1:00:00"},
	}
	st := newFakeStore()
	dl := &fakeDownloader{timestamp: "20250624"}
	seg := &fakeSegmenter{segmentCount: 4} // multi-chunk transcript, opaque beyond this boundary
	sum := &fakeSummarizer{}

	o := newTestOrchestrator(t, st, dl, seg, sum, candidates, 0)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 3 {
		t.Errorf("report.Processed = %d, want 3", report.Processed)
	}
	if sum.calls != 3 {
		t.Errorf("Summarize called %d times, want 3 (once per stream)", sum.calls)
	}
}

func TestRun_DownloadFailureIsolatedFromOtherStreams(t *testing.T) {
	candidates := []scraper.CandidateStream{
		{VideoID: "good1", Title: "National Assembly | Mon", ViewCount: "1 view", Duration: "1:00:00"},
		{VideoID: "bad2", Title: "Senate | Tue", ViewCount: "1 view", Duration: "1:00:00"},
		{VideoID: "good3", Title: "National Assembly | Wed", ViewCount: "1 view", Duration: "1:00:00"},
	}
	st := newFakeStore()
	dl := &fakeDownloader{timestamp: "20250624", failAudioID: map[string]bool{"bad2": true}}
	seg := &fakeSegmenter{segmentCount: 1}
	sum := &fakeSummarizer{}

	o := newTestOrchestrator(t, st, dl, seg, sum, candidates, 0)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("report.Failed = %d, want 1", report.Failed)
	}
	if report.Processed != 2 {
		t.Errorf("report.Processed = %d, want 2", report.Processed)
	}
	if len(st.upserted) != 2 {
		t.Fatalf("upserted %d streams, want 2", len(st.upserted))
	}
	for _, s := range st.upserted {
		if s.VideoID == "bad2" {
			t.Errorf("bad2 should not have been persisted after a download failure")
		}
	}
}

func TestRun_MaxStreamsPerRunCapsProcessing(t *testing.T) {
	candidates := []scraper.CandidateStream{
		{VideoID: "a", Title: "National Assembly | Mon", ViewCount: "1 view", Duration: "1:00:00"},
		{VideoID: "b", Title: "National Assembly | Tue", ViewCount: "1 view", Duration: "1:00:00"},
		{VideoID: "c", Title: "National Assembly | Wed", ViewCount: "1 view", Duration: "1:00:00"},
	}
	st := newFakeStore()
	dl := &fakeDownloader{timestamp: "20250624"}
	seg := &fakeSegmenter{segmentCount: 1}
	sum := &fakeSummarizer{}

	o := newTestOrchestrator(t, st, dl, seg, sum, candidates, 2)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("report.Processed = %d, want 2 (capped by maxStreams)", report.Processed)
	}
}
