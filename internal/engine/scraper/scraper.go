// Package scraper fetches a YouTube channel's "streams" tab and parses the
// embedded ytInitialData payload into a list of candidate stream records.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/kewiro/bunge-digest/internal/engine"
)

const ytInitialDataMarker = "var ytInitialData = "

// ScrapeParseError means the channel page's HTML no longer matches the
// expected structure — the embedded payload could not be located or its
// shape has changed. Treated as run-fatal for the current tick (§7); the
// next tick retries from scratch.
type ScrapeParseError struct {
	Reason string
}

func (e *ScrapeParseError) Error() string {
	return fmt.Sprintf("scrape parse error: %s", e.Reason)
}

// ScrapeTransportError wraps a network-level failure fetching the channel page.
type ScrapeTransportError struct {
	Err error
}

func (e *ScrapeTransportError) Error() string {
	return fmt.Sprintf("scrape transport error: %v", e.Err)
}

func (e *ScrapeTransportError) Unwrap() error { return e.Err }

// FetchStreams fetches the HTML of channelURL (a channel's "/streams" tab)
// and returns candidate stream records in the order YouTube presents them
// (most recent first). In-progress live items are filtered out.
func FetchStreams(ctx context.Context, channelURL string) ([]CandidateStream, error) {
	engine.IncrScrapeRequests()

	body, err := fetchChannelPage(ctx, channelURL)
	if err != nil {
		engine.IncrScrapeErrors()
		return nil, &ScrapeTransportError{Err: err}
	}

	idx := strings.Index(string(body), ytInitialDataMarker)
	if idx < 0 {
		engine.IncrScrapeErrors()
		if degraded := scanVideoLinksDOM(body); len(degraded) > 0 {
			slog.Warn("ytInitialData marker missing, falling back to DOM link scan", slog.Int("found", len(degraded)))
			return degraded, nil
		}
		return nil, &ScrapeParseError{Reason: "ytInitialData marker not found in channel page"}
	}
	jsonData := extractJSON(body[idx+len(ytInitialDataMarker):])
	if jsonData == nil {
		engine.IncrScrapeErrors()
		if degraded := scanVideoLinksDOM(body); len(degraded) > 0 {
			slog.Warn("failed to extract ytInitialData JSON, falling back to DOM link scan", slog.Int("found", len(degraded)))
			return degraded, nil
		}
		return nil, &ScrapeParseError{Reason: "failed to extract ytInitialData JSON object"}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		engine.IncrScrapeErrors()
		return nil, &ScrapeParseError{Reason: "ytInitialData is not a JSON object: " + err.Error()}
	}

	streams, err := parseStreams(payload)
	if err != nil {
		engine.IncrScrapeErrors()
		return nil, err
	}
	return streams, nil
}

func fetchChannelPage(ctx context.Context, channelURL string) ([]byte, error) {
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, channelURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		if engine.Cfg.BrowserClient != nil {
			return fetchChannelPageStealth(channelURL)
		}
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
}

// fetchChannelPageStealth retries the fetch through the Chrome-TLS-fingerprint
// client when the plain request is blocked or rate-limited.
func fetchChannelPageStealth(channelURL string) ([]byte, error) {
	body, status, err := engine.Cfg.BrowserClient.GetChannelPage(channelURL)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("stealth fetch returned status %d", status)
	}
	return body, nil
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by
// tracking brace depth and honoring quoted-string escapes. This is robust to
// nested braces inside string values, unlike a non-greedy regex match.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
		} else {
			switch c {
			case '"':
				inStr = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return b[:i+1]
				}
			}
		}
	}
	return nil
}

var errNoTab = errors.New("tabs[2] missing or not the streams tab")

// parseStreams walks contents.twoColumnBrowseResultsRenderer.tabs[2]
// .tabRenderer.content.richGridRenderer.contents[] and projects each
// videoRenderer into a CandidateStream.
func parseStreams(payload map[string]json.RawMessage) ([]CandidateStream, error) {
	contents, err := richGridContents(payload)
	if err != nil {
		return nil, &ScrapeParseError{Reason: err.Error()}
	}

	streams := make([]CandidateStream, 0, len(contents))
	for _, item := range contents {
		var wrapper struct {
			RichItemRenderer struct {
				Content struct {
					VideoRenderer json.RawMessage `json:"videoRenderer"`
				} `json:"content"`
			} `json:"richItemRenderer"`
		}
		if err := json.Unmarshal(item, &wrapper); err != nil {
			continue
		}
		if len(wrapper.RichItemRenderer.Content.VideoRenderer) == 0 {
			continue
		}
		cs, ok, err := videoRendererToStream(wrapper.RichItemRenderer.Content.VideoRenderer)
		if err != nil {
			return nil, &ScrapeParseError{Reason: err.Error()}
		}
		if !ok {
			continue // live/in-progress item, not a completed archived stream
		}
		streams = append(streams, cs)
	}
	return streams, nil
}

func richGridContents(payload map[string]json.RawMessage) ([]json.RawMessage, error) {
	var top struct {
		Contents struct {
			TwoColumnBrowseResultsRenderer struct {
				Tabs []json.RawMessage `json:"tabs"`
			} `json:"twoColumnBrowseResultsRenderer"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(mustMarshal(payload), &top); err != nil {
		return nil, fmt.Errorf("failed to get contents.twoColumnBrowseResultsRenderer: %w", err)
	}
	tabs := top.Contents.TwoColumnBrowseResultsRenderer.Tabs
	if len(tabs) < 3 {
		return nil, errNoTab
	}
	var tab struct {
		TabRenderer struct {
			Content struct {
				RichGridRenderer struct {
					Contents []json.RawMessage `json:"contents"`
				} `json:"richGridRenderer"`
			} `json:"content"`
		} `json:"tabRenderer"`
	}
	if err := json.Unmarshal(tabs[2], &tab); err != nil {
		return nil, fmt.Errorf("failed to get tabs[2].tabRenderer.content.richGridRenderer: %w", err)
	}
	if tab.TabRenderer.Content.RichGridRenderer.Contents == nil {
		return nil, errNoTab
	}
	return tab.TabRenderer.Content.RichGridRenderer.Contents, nil
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// videoRendererToStream projects one videoRenderer object into a
// CandidateStream. Returns ok=false (no error) for in-progress live items,
// identified by a missing lengthText (YouTube omits duration for live
// broadcasts still in progress).
func videoRendererToStream(raw json.RawMessage) (CandidateStream, bool, error) {
	var vr struct {
		VideoID string `json:"videoId"`
		Title   struct {
			Runs []struct {
				Text string `json:"text"`
			} `json:"runs"`
		} `json:"title"`
		ViewCountText struct {
			SimpleText string `json:"simpleText"`
		} `json:"viewCountText"`
		PublishedTimeText struct {
			SimpleText string `json:"simpleText"`
		} `json:"publishedTimeText"`
		LengthText struct {
			SimpleText string `json:"simpleText"`
		} `json:"lengthText"`
	}
	if err := json.Unmarshal(raw, &vr); err != nil {
		return CandidateStream{}, false, fmt.Errorf("failed to decode videoRenderer: %w", err)
	}
	if vr.VideoID == "" {
		return CandidateStream{}, false, fmt.Errorf("failed to get video id via ['videoId']")
	}
	if len(vr.Title.Runs) == 0 || vr.Title.Runs[0].Text == "" {
		return CandidateStream{}, false, fmt.Errorf("failed to get video title via ['title']['runs'][0]['text']")
	}
	if vr.LengthText.SimpleText == "" {
		// no duration means the stream is still live / in progress.
		return CandidateStream{}, false, nil
	}
	if vr.ViewCountText.SimpleText == "" {
		return CandidateStream{}, false, fmt.Errorf("failed to get view count via ['viewCountText']['simpleText']")
	}
	if vr.PublishedTimeText.SimpleText == "" {
		return CandidateStream{}, false, fmt.Errorf("failed to get published time via ['publishedTimeText']['simpleText']")
	}

	return CandidateStream{
		VideoID:           vr.VideoID,
		Title:             vr.Title.Runs[0].Text,
		ViewCount:         vr.ViewCountText.SimpleText,
		PublishedRelative: vr.PublishedTimeText.SimpleText,
		Duration:          vr.LengthText.SimpleText,
	}, true, nil
}

// scanVideoLinksDOM is the last-resort fallback when the embedded
// ytInitialData payload can't be located or parsed — e.g. YouTube serves a
// consent/interstitial page, or its markup changed underneath us. It walks
// the parsed DOM for "/watch?v=" anchors and returns a best-effort,
// reduced-fidelity candidate list (no view count; title falls back to the
// anchor's visible text or aria-label if present). The downloader's own
// metadata call fills in everything this pass can't see.
func scanVideoLinksDOM(body []byte) []CandidateStream {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []CandidateStream

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, title string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					href = attr.Val
				case "aria-label", "title":
					if title == "" {
						title = attr.Val
					}
				}
			}
			if id := extractVideoID(href); id != "" && !seen[id] {
				seen[id] = true
				if title == "" {
					title = strings.TrimSpace(textContent(n))
				}
				out = append(out, CandidateStream{VideoID: id, Title: title})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func extractVideoID(href string) string {
	const marker = "/watch?v="
	idx := strings.Index(href, marker)
	if idx < 0 {
		return ""
	}
	id := href[idx+len(marker):]
	if amp := strings.IndexAny(id, "&#"); amp >= 0 {
		id = id[:amp]
	}
	return id
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
