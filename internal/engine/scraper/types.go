package scraper

// CandidateStream is one video entry projected off the channel's "streams"
// tab. Title/view count/duration are display strings exactly as YouTube
// renders them; absolute timestamp resolution happens downstream, via the
// downloader adapter's metadata call (§4.A explicitly defers this because the
// channel listing exposes only a relative string).
type CandidateStream struct {
	VideoID           string
	Title              string
	ViewCount          string
	PublishedRelative  string
	Duration           string
}

// URL returns the canonical watch URL for the candidate.
func (c CandidateStream) URL() string {
	return "https://www.youtube.com/watch?v=" + c.VideoID
}
