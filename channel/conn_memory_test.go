// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/chatsync/lib/testutil"
)

func TestMemoryConnRoundTrip(t *testing.T) {
	t.Parallel()

	conn := NewMemoryConn()
	ctx := context.Background()

	conn.Deliver([]byte("inbound"))
	data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "inbound" {
		t.Fatalf("Read: got %q", data)
	}

	if err := conn.Write(ctx, []byte("outbound")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sent := testutil.RequireReceive(t, conn.Sent(), waitTimeout, "written frame")
	if string(sent) != "outbound" {
		t.Fatalf("Sent: got %q", sent)
	}
}

func TestMemoryConnCloseRecordsMode(t *testing.T) {
	t.Parallel()

	graceful := NewMemoryConn()
	graceful.Close(true, "done")
	if closed, g, reason := graceful.Closed(); !closed || !g || reason != "done" {
		t.Fatalf("graceful close: closed=%v graceful=%v reason=%q", closed, g, reason)
	}

	dropped := NewMemoryConn()
	dropped.Drop()
	if closed, g, _ := dropped.Closed(); !closed || g {
		t.Fatalf("drop: closed=%v graceful=%v, want closed abnormal", closed, g)
	}
}

func TestMemoryConnFailsAfterClose(t *testing.T) {
	t.Parallel()

	conn := NewMemoryConn()
	conn.Drop()
	ctx := context.Background()

	if _, err := conn.Read(ctx); !errors.Is(err, errConnClosed) {
		t.Fatalf("Read after drop: got %v", err)
	}
	if err := conn.Write(ctx, []byte("x")); !errors.Is(err, errConnClosed) {
		t.Fatalf("Write after drop: got %v", err)
	}
}

func TestMemoryConnReadHonorsContext(t *testing.T) {
	t.Parallel()

	conn := NewMemoryConn()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conn.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Read with cancelled context: got %v", err)
	}
}
