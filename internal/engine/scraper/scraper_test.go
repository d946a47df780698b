package scraper

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple object", `{"key": "value", "number": 42};</script>`, `{"key": "value", "number": 42}`},
		{"nested braces", `{"a": {"b": {"c": 1}}};`, `{"a": {"b": {"c": 1}}}`},
		{"quoted braces ignored", `{"key": "value with { and } inside"};`, `{"key": "value with { and } inside"}`},
		{"escaped quotes", `{"key": "value with \"quotes\" and \n newline"};`, `{"key": "value with \"quotes\" and \n newline"}`},
		{"not an object", `[1,2,3]`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSON([]byte(tt.in))
			if tt.want == "" {
				if got != nil {
					t.Errorf("extractJSON(%q) = %q, want nil", tt.in, got)
				}
				return
			}
			if string(got) != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVideoRendererToStream(t *testing.T) {
	t.Run("complete archived stream", func(t *testing.T) {
		raw := []byte(`{
			"videoId": "abc12345678",
			"title": {"runs": [{"text": "National Assembly | Tue 24 Jun 2025 | Afternoon"}]},
			"viewCountText": {"simpleText": "1,234 views"},
			"publishedTimeText": {"simpleText": "3 days ago"},
			"lengthText": {"simpleText": "3:45:12"}
		}`)
		cs, ok, err := videoRendererToStream(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected ok=true for a complete stream")
		}
		if cs.VideoID != "abc12345678" {
			t.Errorf("VideoID = %q", cs.VideoID)
		}
		if cs.URL() != "https://www.youtube.com/watch?v=abc12345678" {
			t.Errorf("URL() = %q", cs.URL())
		}
	})

	t.Run("in-progress live item is filtered, not errored", func(t *testing.T) {
		raw := []byte(`{
			"videoId": "live12345678",
			"title": {"runs": [{"text": "Senate | Live now"}]},
			"viewCountText": {"simpleText": "500 watching"},
			"publishedTimeText": {"simpleText": ""}
		}`)
		_, ok, err := videoRendererToStream(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("expected ok=false for an in-progress live item")
		}
	})

	t.Run("missing title is a parse error", func(t *testing.T) {
		raw := []byte(`{
			"videoId": "abc12345678",
			"viewCountText": {"simpleText": "1,234 views"},
			"publishedTimeText": {"simpleText": "3 days ago"},
			"lengthText": {"simpleText": "3:45:12"}
		}`)
		_, _, err := videoRendererToStream(raw)
		if err == nil {
			t.Fatal("expected a parse error for missing title")
		}
	})
}

func TestParseStreams(t *testing.T) {
	t.Run("structure changed, tabs missing", func(t *testing.T) {
		payload := map[string]json.RawMessage{
			"contents": json.RawMessage(`{"twoColumnBrowseResultsRenderer": {"tabs": []}}`),
		}
		_, err := parseStreams(payload)
		if err == nil {
			t.Fatal("expected a ScrapeParseError when tabs[2] is missing")
		}
		var pe *ScrapeParseError
		if !errors.As(err, &pe) {
			t.Errorf("expected *ScrapeParseError, got %T", err)
		}
	})

	t.Run("well-formed payload yields one stream", func(t *testing.T) {
		payload := map[string]json.RawMessage{
			"contents": json.RawMessage(`{"twoColumnBrowseResultsRenderer": {"tabs": [{}, {}, {
				"tabRenderer": {"content": {"richGridRenderer": {"contents": [
					{"richItemRenderer": {"content": {"videoRenderer": {
						"videoId": "abc12345678",
						"title": {"runs": [{"text": "Senate | Thu 19 Jun 2025"}]},
						"viewCountText": {"simpleText": "900 views"},
						"publishedTimeText": {"simpleText": "1 day ago"},
						"lengthText": {"simpleText": "2:10:00"}
					}}}}
				]}}}
			}]}}`),
		}
		streams, err := parseStreams(payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(streams) != 1 {
			t.Fatalf("expected 1 stream, got %d", len(streams))
		}
		if streams[0].VideoID != "abc12345678" {
			t.Errorf("VideoID = %q", streams[0].VideoID)
		}
	})
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/watch?v=abc12345678", "abc12345678"},
		{"/watch?v=abc12345678&list=PL123", "abc12345678"},
		{"https://www.youtube.com/watch?v=xyz98765432&t=10s", "xyz98765432"},
		{"/channel/UC123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractVideoID(tt.href); got != tt.want {
			t.Errorf("extractVideoID(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestScanVideoLinksDOM(t *testing.T) {
	t.Run("dedupes and prefers aria-label over link text", func(t *testing.T) {
		body := []byte(`<html><body>
			<a href="/watch?v=abc12345678" aria-label="National Assembly sitting">link text ignored</a>
			<a href="/watch?v=abc12345678">duplicate, should be skipped</a>
			<a href="/watch?v=def98765432">Senate sitting title</a>
			<a href="/channel/UC123">not a video link</a>
		</body></html>`)

		got := scanVideoLinksDOM(body)
		if len(got) != 2 {
			t.Fatalf("expected 2 deduped candidates, got %d: %+v", len(got), got)
		}
		if got[0].VideoID != "abc12345678" || got[0].Title != "National Assembly sitting" {
			t.Errorf("first candidate = %+v", got[0])
		}
		if got[1].VideoID != "def98765432" || got[1].Title != "Senate sitting title" {
			t.Errorf("second candidate = %+v", got[1])
		}
	})

	t.Run("no video links yields nil", func(t *testing.T) {
		body := []byte(`<html><body><a href="/about">About</a></body></html>`)
		got := scanVideoLinksDOM(body)
		if len(got) != 0 {
			t.Errorf("expected no candidates, got %+v", got)
		}
	})

	t.Run("malformed html does not panic", func(t *testing.T) {
		body := []byte(`<html><body><a href="/watch?v=abc12345678">unterminated`)
		got := scanVideoLinksDOM(body)
		if len(got) != 1 || got[0].VideoID != "abc12345678" {
			t.Errorf("expected 1 candidate recovered from malformed html, got %+v", got)
		}
	})
}
