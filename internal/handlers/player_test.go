package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nowplaying/playerapi/internal/broker"
	"github.com/nowplaying/playerapi/internal/player"
)

func testStatus() player.Status {
	return player.Status{
		Status:        true,
		Name:          "Song",
		Singer:        "Singer",
		AlbumName:     "Album",
		Duration:      240,
		Progress:      12.5,
		PicURL:        "http://img.local/cover.jpg",
		PlaybackRate:  1,
		LyricLineText: "first line",
		Lyric:         "[00:00.00]first line\n[00:05.00]second line",
	}
}

func TestPlayerHandler_Status(t *testing.T) {
	h := NewPlayerHandler(player.NewState(testStatus()), broker.New())
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	want := map[string]any{
		"status":        true,
		"name":          "Song",
		"singer":        "Singer",
		"albumName":     "Album",
		"duration":      float64(240),
		"progress":      12.5,
		"picUrl":        "http://img.local/cover.jpg",
		"playbackRate":  float64(1),
		"lyricLineText": "first line",
	}
	if len(body) != len(want) {
		t.Errorf("got %d fields, want %d: %v", len(body), len(want), body)
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %v", k, body[k], v)
		}
	}
	if _, ok := body["lyric"]; ok {
		t.Error("status response must not carry the full lyric")
	}
}

func TestPlayerHandler_StatusEncodingFailure(t *testing.T) {
	st := testStatus()
	st.Progress = math.NaN()
	h := NewPlayerHandler(player.NewState(st), broker.New())
	rec := httptest.NewRecorder()

	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestPlayerHandler_Lyric(t *testing.T) {
	h := NewPlayerHandler(player.NewState(testStatus()), broker.New())
	rec := httptest.NewRecorder()

	h.Lyric(rec, httptest.NewRequest(http.MethodGet, "/lyric", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != testStatus().Lyric {
		t.Errorf("Body = %q", rec.Body.String())
	}
}

func TestPlayerHandler_Forbidden(t *testing.T) {
	h := NewPlayerHandler(player.NewState(testStatus()), broker.New())
	rec := httptest.NewRecorder()

	h.Forbidden(rec, httptest.NewRequest(http.MethodGet, "/unknown-path", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if rec.Body.String() != "Forbidden" {
		t.Errorf("Body = %q, want Forbidden", rec.Body.String())
	}
}

func TestPlayerHandler_SubscribeAfterClose(t *testing.T) {
	b := broker.New()
	b.CloseAll()
	h := NewPlayerHandler(player.NewState(testStatus()), b)
	rec := httptest.NewRecorder()

	h.Subscribe(rec, httptest.NewRequest(http.MethodGet, "/subscribe-player-status", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestPlayerHandler_SubscribeStream(t *testing.T) {
	state := player.NewState(testStatus())
	b := broker.New()
	h := NewPlayerHandler(state, b)
	srv := httptest.NewServer(http.HandlerFunc(h.Subscribe))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	reader := bufio.NewReader(resp.Body)
	for i, f := range player.Fields {
		name, _ := readFrame(t, reader)
		if name != string(f) {
			t.Fatalf("initial frame %d = %q, want %q", i, name, f)
		}
	}

	waitFor(t, func() bool { return b.Len() == 1 })
	// Nothing subscribes the broker to the state here; push the delta directly.
	b.Broadcast(player.Delta{{Field: player.FieldProgress, Value: 42}})

	name, data := readFrame(t, reader)
	if name != "progress" || data != "42" {
		t.Errorf("frame = %s/%s, want progress/42", name, data)
	}

	cancel()
	waitFor(t, func() bool { return b.Len() == 0 })
}

// readFrame reads one "event:/data:/blank" frame.
func readFrame(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	lines := make([]string, 3)
	for i := range lines {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		lines[i] = strings.TrimSuffix(line, "\n")
	}
	if !strings.HasPrefix(lines[0], "event: ") || !strings.HasPrefix(lines[1], "data: ") || lines[2] != "" {
		t.Fatalf("malformed frame %q", lines)
	}
	return strings.TrimPrefix(lines[0], "event: "), strings.TrimPrefix(lines[1], "data: ")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
