package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// captureLogOutput redirects the global logger to a buffer while f runs.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer
	oldLogger := defaultLogger
	defaultLogger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defer func() { defaultLogger = oldLogger }()

	f()
	return buf.String()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestInitLoggerTo(t *testing.T) {
	defer InitLogger(LevelInfo, FormatJSON)

	tests := []struct {
		name    string
		level   Level
		format  Format
		logFn   func()
		want    string
		wantOut bool
	}{
		{"json info", LevelInfo, FormatJSON, func() { Info("hello", "k", "v") }, `"msg":"hello"`, true},
		{"text info", LevelInfo, FormatText, func() { Info("hello") }, "msg=hello", true},
		{"debug filtered", LevelInfo, FormatJSON, func() { Debug("quiet") }, "", false},
		{"warn passes error", LevelWarn, FormatJSON, func() { Error("loud") }, `"level":"ERROR"`, true},
		{"unknown level acts as info", Level(99), FormatJSON, func() { Debug("quiet") }, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitLoggerTo(&buf, tt.level, tt.format)
			tt.logFn()
			out := buf.String()
			if (out != "") != tt.wantOut {
				t.Fatalf("output = %q, want output %v", out, tt.wantOut)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
		})
	}
}

func TestTimestampFormat(t *testing.T) {
	defer InitLogger(LevelInfo, FormatJSON)
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelInfo, FormatJSON)
	Info("stamp")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	ts, _ := entry["time"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestContextValues(t *testing.T) {
	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-9")
	if GetRequestID(ctx) != "req-1" {
		t.Errorf("GetRequestID = %q", GetRequestID(ctx))
	}
	if GetRequestID(context.WithValue(context.Background(), RequestIDKey, 5)) != "" {
		t.Error("non-string request id should be ignored")
	}

	output := captureLogOutput(func() {
		InfoContext(ctx, "scoped")
	})
	for _, want := range []string{"req-1", "sess-9", "session_id"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %q", output, want)
		}
	}
}

func TestLevelHelpers(t *testing.T) {
	ctx := WithRequestID(context.Background(), "rid")
	tests := []struct {
		name string
		fn   func()
	}{
		{"Debug", func() { Debug("m") }},
		{"Info", func() { Info("m") }},
		{"Warn", func() { Warn("m") }},
		{"Error", func() { Error("m") }},
		{"DebugContext", func() { DebugContext(ctx, "m") }},
		{"InfoContext", func() { InfoContext(ctx, "m") }},
		{"WarnContext", func() { WarnContext(ctx, "m") }},
		{"ErrorContext", func() { ErrorContext(ctx, "m") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if captureLogOutput(tt.fn) == "" {
				t.Error("expected log output")
			}
		})
	}
}

func TestEvents(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-ev")
	tests := []struct {
		name string
		fn   func()
		want []string
	}{
		{
			"render",
			func() { RenderEvent(ctx, "T01.xml", "abc", "store", 3*time.Millisecond, "runes", 42) },
			[]string{`"msg":"render"`, "T01.xml", `"origin":"store"`, `"runes":42`, "req-ev"},
		},
		{
			"store error",
			func() { StoreError(ctx, "put", "abc", errors.New("disk full")) },
			[]string{"store_error", "disk full", `"operation":"put"`},
		},
		{
			"http request",
			func() { HTTPRequestContext(ctx, "GET", "/api/render", "127.0.0.1:1", 200, time.Millisecond) },
			[]string{"http_request", "/api/render", `"status_code":200`},
		},
		{
			"websocket",
			func() { WebSocketEvent("connect", 2, "session_id", "s1") },
			[]string{"websocket_event", `"client_count":2`, "s1"},
		},
		{
			"startup",
			func() { ServerStartup("sync", "http", 8080) },
			[]string{"server_startup", `"port":8080`},
		},
		{
			"security",
			func() { SecurityEvent("path_rejected", "api", "path", "../etc") },
			[]string{"security_event", "path_rejected", `"level":"WARN"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureLogOutput(tt.fn)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if len(seen) != 16 {
			t.Errorf("generated id %q, want 16 hex chars", seen)
		}
		if rec.Header().Get("X-Request-ID") != seen {
			t.Errorf("header = %q, context = %q", rec.Header().Get("X-Request-ID"), seen)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "upstream-1")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "upstream-1" {
			t.Errorf("request id = %q, want upstream-1", seen)
		}
	})
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"implicit ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("x")) }, http.StatusOK},
		{"explicit status", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }, http.StatusNotFound},
		{"first status wins", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			w.WriteHeader(http.StatusOK)
		}, http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			out := captureLogOutput(func() {
				CombinedMiddleware(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
			})
			if rec.Code != tt.want {
				t.Errorf("recorded status = %d, want %d", rec.Code, tt.want)
			}
			var entry struct {
				Status    int    `json:"status_code"`
				RequestID string `json:"request_id"`
			}
			if err := json.Unmarshal([]byte(out), &entry); err != nil {
				t.Fatalf("log %q: %v", out, err)
			}
			if entry.Status != tt.want || entry.RequestID == "" {
				t.Errorf("logged %+v, want status %d with request id", entry, tt.want)
			}
		})
	}
}

func TestHijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("Hijack() on a recorder should fail")
	}
}
