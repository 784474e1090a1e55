package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/umangiveystaff/iveymeetingnotetaker/internal/audio"
)

func newTestEngine(t *testing.T, endpoint string) *HTTPEngine {
	t.Helper()
	engine, err := NewHTTPEngine(HTTPConfig{
		Endpoint:   endpoint,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("NewHTTPEngine failed: %v", err)
	}
	return engine
}

func testSamples() []int16 {
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	return samples
}

func TestNewHTTPEngineValidation(t *testing.T) {
	if _, err := NewHTTPEngine(HTTPConfig{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}

	engine, err := NewHTTPEngine(HTTPConfig{Endpoint: "http://127.0.0.1:8580/inference"})
	if err != nil {
		t.Fatalf("NewHTTPEngine failed: %v", err)
	}
	if engine.healthURL != "http://127.0.0.1:8580/health" {
		t.Errorf("healthURL = %q", engine.healthURL)
	}
	if engine.config.Timeout != 120*time.Second {
		t.Errorf("Default timeout = %v, want 120s", engine.config.Timeout)
	}
}

func TestLoadHealthCheck(t *testing.T) {
	var healthCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			atomic.AddInt32(&healthCalls, 1)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL+"/inference")

	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Load is once-only; later calls return immediately.
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Second Load failed: %v", err)
	}
	if got := atomic.LoadInt32(&healthCalls); got != 1 {
		t.Errorf("Health check calls = %d, want 1", got)
	}
}

func TestLoadUnreachableServer(t *testing.T) {
	engine := newTestEngine(t, "http://127.0.0.1:1/inference")

	err := engine.Load(context.Background())
	if err == nil {
		t.Fatal("Expected error for unreachable server")
	}
	if !errors.Is(err, ErrModelLoad) {
		t.Errorf("Load error should wrap ErrModelLoad, got: %v", err)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("Expected multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file field: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		if lang := r.FormValue("language"); lang != "en" {
			t.Errorf("language field = %q, want en", lang)
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "the quarterly numbers look good"})
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL+"/inference")

	text, err := engine.Transcribe(context.Background(), testSamples(), 16000)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "the quarterly numbers look good" {
		t.Errorf("Transcribe = %q", text)
	}
}

func TestTranscribeUploadsValidWAV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(32 << 20)
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		buf := make([]byte, 44+32000)
		n, _ := file.Read(buf)
		samples, rate, err := audio.DecodeWAV(buf[:n])
		if err != nil {
			t.Errorf("Uploaded chunk is not valid WAV: %v", err)
		} else {
			if rate != 16000 {
				t.Errorf("Uploaded sample rate = %d, want 16000", rate)
			}
			if len(samples) != 16000 {
				t.Errorf("Uploaded samples = %d, want 16000", len(samples))
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL+"/inference")
	if _, err := engine.Transcribe(context.Background(), testSamples(), 16000); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
}

func TestTranscribeRetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "recovered"})
	}))
	defer server.Close()

	engine, err := NewHTTPEngine(HTTPConfig{
		Endpoint:   server.URL + "/inference",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("NewHTTPEngine failed: %v", err)
	}

	text, err := engine.Transcribe(context.Background(), testSamples(), 16000)
	if err != nil {
		t.Fatalf("Transcribe failed after retry: %v", err)
	}
	if text != "recovered" {
		t.Errorf("Transcribe = %q", text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Request count = %d, want 2", got)
	}
}

func TestTranscribeServerErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL+"/inference")

	if _, err := engine.Transcribe(context.Background(), testSamples(), 16000); err == nil {
		t.Error("Expected error from server error field")
	}
}

func TestTranscribeEmptySamples(t *testing.T) {
	engine := newTestEngine(t, "http://127.0.0.1:8580/inference")
	if _, err := engine.Transcribe(context.Background(), nil, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}
}
