package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/paperbeat/internal/dispatch"
)

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if _, exists := response["calibrated"]; exists {
			t.Error("'calibrated' should be absent without a calibrator")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_HealthReportsDrops(t *testing.T) {
	bus := dispatch.NewBus()
	if _, err := bus.Subscribe("slow", 1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		bus.Publish(dispatch.NoteEvent{Note: 60 + i})
	}

	hub, err := NewNotesHub(bus)
	if err != nil {
		t.Fatalf("NewNotesHub() error = %v", err)
	}
	defer hub.Close()

	s := New(Config{Notes: hub, Bus: bus})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var response struct {
		LiveDropped *uint64           `json:"live_dropped"`
		Bus         dispatch.BusStats `json:"bus"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.LiveDropped == nil || *response.LiveDropped != 0 {
		t.Errorf("live_dropped = %v, want 0", response.LiveDropped)
	}
	if response.Bus.Published != 3 {
		t.Errorf("bus.published = %d, want 3", response.Bus.Published)
	}
	if got := response.Bus.Subscribers["slow"]; got.Sent != 1 || got.Dropped != 2 {
		t.Errorf("bus.subscribers.slow = %+v, want sent 1 dropped 2", got)
	}
	if _, ok := response.Bus.Subscribers["ws"]; !ok {
		t.Error("live feed subscriber missing from bus stats")
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a test HTML file
	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// Create a CSS file for testing direct file access
	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{})

	t.Run("root path returns 404 when no static dir configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}

		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}

func TestServer_RoutesNeedDependencies(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/calibration", "/api/calibrations", "/api/settings", "/api/notes", "/api/notes/live", "/api/stream"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d without dependencies, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

// staticFrames always reports the same frame.
type staticFrames struct {
	data []byte
	err  error
}

func (f staticFrames) JPEG(int) ([]byte, error) { return f.data, f.err }
func (f staticFrames) Seq() uint64              { return 1 }

func TestStreamHandler(t *testing.T) {
	t.Run("writes one part per new frame", func(t *testing.T) {
		h := NewStreamHandler(staticFrames{data: []byte("JPEGDATA")})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
			t.Errorf("unexpected Content-Type %q", ct)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 8\r\n\r\nJPEGDATA\r\n") {
			t.Errorf("unexpected body %q", body)
		}
	})

	t.Run("no frame yet", func(t *testing.T) {
		h := NewStreamHandler(staticFrames{err: errors.New("no frame")})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if strings.Contains(rec.Body.String(), "--frame") {
			t.Error("no part should be written without a frame")
		}
	})

	t.Run("only GET", func(t *testing.T) {
		h := NewStreamHandler(staticFrames{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}
