package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agleyzer/slidecast/internal/backend/sim"
	"github.com/agleyzer/slidecast/internal/cluster"
	"github.com/agleyzer/slidecast/internal/highlight"
	"github.com/agleyzer/slidecast/internal/narration"
	"github.com/agleyzer/slidecast/internal/player"
	"github.com/agleyzer/slidecast/internal/timeline"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func createTestServer(t *testing.T) *Server {
	t.Helper()
	logger := createTestLogger()

	idx := narration.Build([]narration.RawSlide{
		{Index: 1, Title: "Intro", Lines: []narration.RawLine{
			{Text: "hello", Start: "0", End: "10", StartVideo: "0", EndVideo: "10"},
			{Text: "world", Start: "10", End: "20", StartVideo: "10", EndVideo: "20"},
		}},
		{Index: 2, Title: "Outro", Lines: []narration.RawLine{
			{Text: "bye", Start: "0", End: "20", StartVideo: "20", EndVideo: "40"},
		}},
	}, logger)

	rig := sim.NewRig(sim.RigConfig{Durations: sim.Durations(idx), Video: sim.VideoConfig{Duration: 40}}, logger)

	hl := highlight.NewBroadcaster(logger)
	proj := highlight.NewProjection(idx)
	hl.AddRenderer(proj)

	opts := player.Options{
		ArticleSettle:            time.Millisecond,
		PresentationSettle:       time.Millisecond,
		VideoSettle:              time.Millisecond,
		AudioPollInterval:        time.Millisecond,
		VideoPollInterval:        time.Millisecond,
		ReadyTimeout:             200 * time.Millisecond,
		ArticleAdvanceDelay:      time.Millisecond,
		PresentationAdvanceDelay: time.Millisecond,
	}

	session := player.New(timeline.New(idx, logger), hl, player.Backends{
		Scroller:       rig.Article,
		ArticleAudio:   rig.AudioHandles(),
		ArticleSlides:  rig.SlideSlideshows(),
		Slideshow:      rig.Slideshow,
		SlideshowAudio: rig.SharedAudio,
		Video:          rig.Video,
	}, opts, logger)
	rig.Connect(session)

	if o := session.Start(context.Background()); o == player.OutcomeSuperseded {
		t.Fatalf("Failed to start session: %v", o)
	}

	return New(session, proj, "https://example.com/talk.mp4", 8080, logger)
}

func do(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeAction(t *testing.T, w *httptest.ResponseRecorder) actionResponse {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp actionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestNew(t *testing.T) {
	srv := createTestServer(t)

	if srv.session == nil || srv.projection == nil {
		t.Error("Session not set correctly")
	}
	if srv.port != 8080 {
		t.Error("Port not set correctly")
	}
	if srv.cluster != nil {
		t.Error("Cluster should be unset")
	}
}

func TestHandleHealth(t *testing.T) {
	srv := createTestServer(t)

	w := do(t, srv, "GET", "/health")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", health["status"])
	}
	if _, ok := health["state"].(map[string]interface{}); !ok {
		t.Error("Health response missing state")
	}
}

func TestHandleState(t *testing.T) {
	srv := createTestServer(t)

	w := do(t, srv, "GET", "/state")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var state stateResponse
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.View != "article" {
		t.Errorf("Expected view article, got %s", state.View)
	}
	if state.Slide != 1 {
		t.Errorf("Expected slide 1, got %d", state.Slide)
	}
	if state.Progress.Total != 40 {
		t.Errorf("Expected total 40, got %v", state.Progress.Total)
	}
	if state.ID == "" {
		t.Error("Expected session ID")
	}
}

func TestHandleView(t *testing.T) {
	srv := createTestServer(t)

	resp := decodeAction(t, do(t, srv, "POST", "/view?mode=presentation"))
	if resp.Outcome != "synced" {
		t.Errorf("Expected synced, got %s", resp.Outcome)
	}
	if resp.State.View != "presentation" {
		t.Errorf("Expected view presentation, got %s", resp.State.View)
	}

	resp = decodeAction(t, do(t, srv, "POST", "/view?mode=presentation"))
	if resp.Outcome != "noop" {
		t.Errorf("Expected noop for same view, got %s", resp.Outcome)
	}
}

func TestHandleSlide(t *testing.T) {
	srv := createTestServer(t)

	resp := decodeAction(t, do(t, srv, "POST", "/slide?index=2"))
	if resp.State.Slide != 2 {
		t.Errorf("Expected slide 2, got %d", resp.State.Slide)
	}
	if resp.State.Highlight.ActiveSlide != 2 {
		t.Errorf("Expected active slide 2, got %d", resp.State.Highlight.ActiveSlide)
	}
}

func TestHandleSeek(t *testing.T) {
	srv := createTestServer(t)

	resp := decodeAction(t, do(t, srv, "POST", "/seek?fraction=0.75"))
	if resp.State.Slide != 2 {
		t.Errorf("Expected slide 2, got %d", resp.State.Slide)
	}
	if resp.State.Line == nil || resp.State.Line.Text != "bye" {
		t.Errorf("Expected line 'bye', got %+v", resp.State.Line)
	}
}

func TestHandleNextPrevious(t *testing.T) {
	srv := createTestServer(t)

	resp := decodeAction(t, do(t, srv, "POST", "/next"))
	if resp.State.Line == nil || resp.State.Line.Text != "hello" {
		t.Fatalf("Expected first line, got %+v", resp.State.Line)
	}

	resp = decodeAction(t, do(t, srv, "POST", "/next"))
	if resp.State.Line == nil || resp.State.Line.Text != "world" {
		t.Fatalf("Expected second line, got %+v", resp.State.Line)
	}

	resp = decodeAction(t, do(t, srv, "POST", "/previous"))
	if resp.State.Line == nil || resp.State.Line.Text != "hello" {
		t.Errorf("Expected first line again, got %+v", resp.State.Line)
	}
}

func TestHandleToggle(t *testing.T) {
	srv := createTestServer(t)

	w := do(t, srv, "POST", "/toggle")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Playing bool `json:"playing"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Playing {
		t.Error("Expected playback to start")
	}
}

func TestHandleActions_BadRequests(t *testing.T) {
	srv := createTestServer(t)

	tests := []struct {
		method string
		target string
		status int
	}{
		{"GET", "/view?mode=video", http.StatusMethodNotAllowed},
		{"GET", "/next", http.StatusMethodNotAllowed},
		{"POST", "/view?mode=slides", http.StatusBadRequest},
		{"POST", "/slide?index=two", http.StatusBadRequest},
		{"POST", "/slide?index=9", http.StatusNotFound},
		{"POST", "/seek", http.StatusBadRequest},
		{"GET", "/cluster", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := do(t, srv, tt.method, tt.target)
		if w.Code != tt.status {
			t.Errorf("%s %s: Expected status %d, got %d", tt.method, tt.target, tt.status, w.Code)
		}
	}
}

func TestHandleChapters(t *testing.T) {
	srv := createTestServer(t)

	w := do(t, srv, "GET", "/chapters.m3u8")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Errorf("Expected Content-Type 'application/vnd.apple.mpegurl', got '%s'", ct)
	}
	if cors := w.Header().Get("Access-Control-Allow-Origin"); cors != "*" {
		t.Errorf("Expected CORS header '*', got '%s'", cors)
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "#EXTM3U") {
		t.Error("Playlist should start with #EXTM3U")
	}
	if !strings.Contains(body, "https://example.com/talk.mp4#t=20,40") {
		t.Errorf("Playlist missing slide 2 chapter:\n%s", body)
	}
}

type fakeCluster struct{}

func (fakeCluster) NodeID() string     { return "node1" }
func (fakeCluster) IsLeader() bool     { return true }
func (fakeCluster) LeaderAddr() string { return "127.0.0.1:7000" }
func (fakeCluster) State() string      { return "Leader" }
func (fakeCluster) GetState() cluster.PresenterState {
	return cluster.PresenterState{Position: cluster.Position{Slide: 2}, Revision: 7, SlideCount: 2}
}

func TestHandleCluster(t *testing.T) {
	srv := createTestServer(t)
	srv.SetCluster(fakeCluster{})

	w := do(t, srv, "GET", "/cluster")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Node      string                 `json:"node"`
		Leader    bool                   `json:"leader"`
		Presenter cluster.PresenterState `json:"presenter"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Node != "node1" || !resp.Leader || resp.Presenter.Revision != 7 {
		t.Errorf("Unexpected cluster response %+v", resp)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	srv := createTestServer(t)

	// Create a test handler
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test"))
	})

	wrapped := srv.loggingMiddleware(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	// Check that handler was called
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "test" {
		t.Errorf("Expected body 'test', got '%s'", w.Body.String())
	}
}

func TestResponseWriter_CapturesStatusCode(t *testing.T) {
	wrapped := &responseWriter{
		ResponseWriter: httptest.NewRecorder(),
		statusCode:     http.StatusOK,
	}

	wrapped.WriteHeader(http.StatusNotFound)

	if wrapped.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", wrapped.statusCode)
	}
}

func TestServer_Integration(t *testing.T) {
	srv := createTestServer(t)
	srv.port = 0 // Use port 0 for automatic port assignment

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Start server in background
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	// Server should be running, cancel context to stop it
	cancel()

	// Wait for server to stop
	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("Expected nil or ErrServerClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Server did not stop within timeout")
	}
}

func TestHandleState_ConcurrentRequests(t *testing.T) {
	srv := createTestServer(t)
	handler := srv.Handler()

	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func(i int) {
			target := "/state"
			method := "GET"
			if i%2 == 0 {
				target, method = "/next", "POST"
			}
			req := httptest.NewRequest(method, target, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}

			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}
