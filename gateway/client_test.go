// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/chatsync/lib/clock"
	"github.com/bureau-foundation/chatsync/lib/testutil"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *clock.FakeClock) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	clk := clock.Fake(time.Unix(1700000000, 0))
	client, err := NewClient(ClientConfig{
		BaseURL: server.URL,
		Clock:   clk,
		Logger:  slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, clk
}

func TestCreateSession(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions/create" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if body["instanceId"] != "session-1" {
			t.Errorf("instanceId: got %q", body["instanceId"])
		}
		json.NewEncoder(w).Encode(SessionInfo{SessionID: "session-1", Status: StatusConnecting})
	}))

	info, err := client.CreateSession(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if info.SessionID != "session-1" || info.Status != StatusConnecting {
		t.Fatalf("CreateSession: got %+v", info)
	}
}

func TestSessionNotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
	}))

	_, err := client.Session(context.Background(), "ghost")
	if !IsNotFound(err) {
		t.Fatalf("Session: got %v, want a 404 APIError", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "session not found" {
		t.Fatalf("error body not surfaced: %v", err)
	}
}

func TestSessionsList(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sessions": []SessionInfo{
				{SessionID: "a", Status: StatusConnected},
				{SessionID: "b", Status: StatusConnecting},
			},
		})
	}))

	sessions, err := client.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "a" {
		t.Fatalf("Sessions: got %+v", sessions)
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	var deleted atomic.Bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/sessions/session-1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		deleted.Store(true)
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.DeleteSession(context.Background(), "session-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if !deleted.Load() {
		t.Fatal("delete never reached the server")
	}
}

func TestQRCode(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/session-1/qrcode":
			json.NewEncoder(w).Encode(map[string]string{"qrcode": "pairing-payload"})
		case "/api/sessions/session-1/qrcode/image":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("\x89PNG fake"))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))

	code, err := client.QRCode(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("QRCode: %v", err)
	}
	if code != "pairing-payload" {
		t.Fatalf("QRCode: got %q", code)
	}

	image, err := client.QRCodeImage(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("QRCodeImage: %v", err)
	}
	if string(image) != "\x89PNG fake" {
		t.Fatalf("QRCodeImage: got %q", image)
	}
}

func TestAwaitConnected(t *testing.T) {
	t.Parallel()

	// Not found, then connecting, then connected.
	var polls atomic.Int32
	client, clk := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch polls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusNotFound)
		case 2:
			json.NewEncoder(w).Encode(SessionInfo{SessionID: "session-1", Status: StatusConnecting})
		default:
			json.NewEncoder(w).Encode(SessionInfo{SessionID: "session-1", Status: StatusConnected})
		}
	}))

	errs := make(chan error, 1)
	go func() {
		errs <- client.AwaitConnected(context.Background(), "session-1", time.Second)
	}()

	clk.WaitForTimers(1)
	clk.Advance(time.Second)
	clk.WaitForTimers(1)
	clk.Advance(time.Second)

	if err := testutil.RequireReceive(t, errs, 5*time.Second, "await result"); err != nil {
		t.Fatalf("AwaitConnected: %v", err)
	}
	if got := polls.Load(); got != 3 {
		t.Fatalf("polls: got %d, want 3", got)
	}
}

func TestAwaitConnectedAbortsOnServerError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := client.AwaitConnected(context.Background(), "session-1", time.Second)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("AwaitConnected: got %v, want a 500 APIError", err)
	}
}

func TestAwaitConnectedHonorsContext(t *testing.T) {
	t.Parallel()

	client, clk := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SessionInfo{SessionID: "session-1", Status: StatusConnecting})
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- client.AwaitConnected(ctx, "session-1", time.Second)
	}()

	clk.WaitForTimers(1)
	cancel()
	err := testutil.RequireReceive(t, errs, 5*time.Second, "await result")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("AwaitConnected: got %v, want context.Canceled", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("NewClient without BaseURL: got nil error")
	}
}
