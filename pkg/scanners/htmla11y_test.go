package scanners

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCountDeclarations(t *testing.T) {
	tests := []struct {
		style    string
		expected int
	}{
		{"", 0},
		{"color: red", 1},
		{"color: red; font-weight: bold;", 2},
		{"color: red; font-weight: bold; display: none;", 3},
	}

	for _, tt := range tests {
		if got := countDeclarations(tt.style); got != tt.expected {
			t.Errorf("countDeclarations(%q) = %d, want %d", tt.style, got, tt.expected)
		}
	}
}

func TestProbeA11Y(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><img src="a.png"><img src="b.png" alt="b"><div style="color:red;font-weight:bold;"></div></body></html>`))
	}))
	defer server.Close()

	client := server.Client()
	payload := probeA11Y(context.Background(), client, server.Listener.Addr().String())

	if payload.StatusCode != 0 {
		// probeA11Y always dials https://<domain>/, which the plain httptest
		// server can't satisfy; confirm it degrades to a recorded error
		// rather than panicking.
		t.Fatalf("unexpected status code %d for an https-only probe against a non-TLS test server", payload.StatusCode)
	}
	if payload.Error == "" {
		t.Error("expected an error describing the failed TLS handshake")
	}
}

func TestNewHTMLA11Y_ToRows(t *testing.T) {
	reg := NewHTMLA11Y(&http.Client{Timeout: time.Second}, time.Second)

	payload := HTMLA11YPayload{
		StatusCode:       200,
		HasLangAttr:      true,
		ImagesMissingAlt: 2,
		InlineStyleDecls: 1,
		Issues:           []string{"2 images missing alt text"},
	}

	rows := reg.ToRows(payload)
	if len(rows) != 1 {
		t.Fatalf("found %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row[0] != "200" || row[1] != "true" || row[2] != "2" || row[3] != "1" {
		t.Errorf("found %v, want fields mapped in header order", row)
	}
}

func TestNewHTMLA11Y_ToRows_MapPayload(t *testing.T) {
	reg := NewHTMLA11Y(&http.Client{Timeout: time.Second}, time.Second)

	// Mirrors what pkg/executor/local.go's normalize() hands ToRows after a
	// JSON round trip: numbers decode as float64, not int.
	payload := map[string]interface{}{
		"statusCode":              float64(200),
		"hasLangAttr":             true,
		"imagesMissingAlt":        float64(2),
		"inlineStyleDeclarations": float64(1),
		"issues":                  []interface{}{"2 images missing alt text"},
		"error":                   "",
	}

	rows := reg.ToRows(payload)
	if len(rows) != 1 {
		t.Fatalf("found %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row[0] != "200" || row[1] != "true" || row[2] != "2" || row[3] != "1" || row[4] != "2 images missing alt text" {
		t.Errorf("found %v, want fields decoded from a remote-style map payload", row)
	}
}

func TestNewHTMLA11Y_ToRows_UnexpectedType(t *testing.T) {
	reg := NewHTMLA11Y(&http.Client{Timeout: time.Second}, time.Second)

	if rows := reg.ToRows("not the payload type"); rows != nil {
		t.Errorf("found %v, want nil rows for an unexpected payload type", rows)
	}
}
