// Package integration provides integration testing utilities for Slidecast.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestHarness serves deck files and runs one slidecast process against them.
type TestHarness struct {
	t             *testing.T
	httpServer    *http.Server
	httpPort      int
	slidecastCmd  *exec.Cmd
	slidecastPort int
	tempDir       string
	cancel        context.CancelFunc
}

// NewTestHarness creates a new test harness.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	return &TestHarness{
		t:             t,
		httpPort:      findAvailablePort(t),
		slidecastPort: findAvailablePort(t),
	}
}

// StartHTTPServer starts an HTTP server serving files from a fresh temp
// directory, starting with one deck.
func (h *TestHarness) StartHTTPServer(deckContent string, deckName string) {
	h.t.Helper()

	h.tempDir = h.t.TempDir()
	h.AddFile(deckContent, deckName)

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(h.tempDir)))

	h.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", h.httpPort),
		Handler: mux,
	}

	go func() {
		if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.t.Logf("HTTP server error: %v", err)
		}
	}()

	waitForServer(h.t, fmt.Sprintf("http://localhost:%d", h.httpPort), 5*time.Second)
	h.t.Logf("HTTP server started on port %d", h.httpPort)
}

// AddFile writes another file next to the deck.
// Must be called after StartHTTPServer.
func (h *TestHarness) AddFile(content string, name string) {
	h.t.Helper()

	if h.tempDir == "" {
		h.t.Fatal("StartHTTPServer must be called before AddFile")
	}

	path := filepath.Join(h.tempDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		h.t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		h.t.Fatalf("failed to write %s: %v", name, err)
	}
}

// DeckURL returns the served URL of name.
func (h *TestHarness) DeckURL(name string) string {
	return fmt.Sprintf("http://localhost:%d/%s", h.httpPort, name)
}

// StartSlidecast starts the slidecast binary on the served deck.
func (h *TestHarness) StartSlidecast(deckName string, args ...string) {
	h.t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	cmdArgs := append([]string{
		"--port", fmt.Sprintf("%d", h.slidecastPort),
		"--tick", "20ms",
	}, args...)
	cmdArgs = append(cmdArgs, h.DeckURL(deckName))

	h.slidecastCmd = exec.CommandContext(ctx, findSlidecastBinary(h.t), cmdArgs...)

	// Capture output for debugging
	h.slidecastCmd.Stdout = os.Stdout
	h.slidecastCmd.Stderr = os.Stderr

	if err := h.slidecastCmd.Start(); err != nil {
		h.t.Fatalf("failed to start slidecast: %v", err)
	}

	waitForServer(h.t, h.URL("/health"), 10*time.Second)
	h.t.Logf("Slidecast started on port %d", h.slidecastPort)
}

// URL returns the slidecast URL of path.
func (h *TestHarness) URL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", h.slidecastPort, path)
}

// Get fetches path and returns the body.
func (h *TestHarness) Get(path string) string {
	h.t.Helper()

	body, status, err := request(http.MethodGet, h.URL(path))
	if err != nil {
		h.t.Fatalf("failed to fetch %s: %v", path, err)
	}
	if status != http.StatusOK {
		h.t.Fatalf("unexpected status code for %s: %d", path, status)
	}
	return body
}

// Post sends an empty POST to path and decodes the JSON response.
func (h *TestHarness) Post(path string) map[string]any {
	h.t.Helper()

	body, status, err := request(http.MethodPost, h.URL(path))
	if err != nil {
		h.t.Fatalf("failed to post %s: %v", path, err)
	}
	if status != http.StatusOK {
		h.t.Fatalf("unexpected status code for %s: %d: %s", path, status, body)
	}
	return decode(h.t, body)
}

// State fetches the session state.
func (h *TestHarness) State() *State {
	h.t.Helper()
	return parseState(h.t, h.Get("/state"))
}

// Cleanup stops all running services.
func (h *TestHarness) Cleanup() {
	h.t.Helper()

	if h.cancel != nil {
		h.cancel()
	}
	if h.slidecastCmd != nil && h.slidecastCmd.Process != nil {
		h.slidecastCmd.Process.Kill()
		h.slidecastCmd.Wait()
	}

	if h.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.httpServer.Shutdown(ctx)
	}
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()
	waitForCondition(h.t, condition, timeout, description)
}

// State is the part of the /state response the tests look at.
type State struct {
	View        string    `json:"view"`
	Slide       int       `json:"slide"`
	Timestamp   float64   `json:"timestamp"`
	Playing     bool      `json:"playing"`
	LastOutcome string    `json:"lastOutcome"`
	Line        *lineRef  `json:"line"`
	Highlight   highlight `json:"highlight"`
}

type lineRef struct {
	Slide int    `json:"slide"`
	Seq   int    `json:"seq"`
	Text  string `json:"text"`
}

type highlight struct {
	ActiveSlide int `json:"activeSlide"`
}

// LineText returns the highlighted line text, or "".
func (s *State) LineText() string {
	if s.Line == nil {
		return ""
	}
	return s.Line.Text
}

func parseState(t *testing.T, body string) *State {
	t.Helper()

	var s State
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	return &s
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()

	var v map[string]any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func request(method, url string) (string, int, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return "", 0, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(body), resp.StatusCode, nil
}

// findSlidecastBinary locates the slidecast binary.
func findSlidecastBinary(t *testing.T) string {
	t.Helper()

	// Try several possible locations
	candidates := []string{
		"../../slidecast",           // From test/integration
		"./slidecast",               // From project root
		"../slidecast",              // From test directory
		"./cmd/slidecast/slidecast", // Built in place
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			t.Logf("Found slidecast binary at: %s", absPath)
			return absPath
		}
	}

	t.Fatal("slidecast binary not found. Run 'go build -o slidecast ./cmd/slidecast' first")
	return ""
}

// waitForServer waits for a server to become available.
func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server at %s did not become available within %v", url, timeout)
}

func waitForCondition(t *testing.T, condition func() bool, timeout time.Duration, description string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		<-ticker.C
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for condition: %s", description)
		}
	}
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// chapterURIs returns the segment URIs of a chapter playlist.
func chapterURIs(content string) []string {
	var uris []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			uris = append(uris, line)
		}
	}
	return uris
}
