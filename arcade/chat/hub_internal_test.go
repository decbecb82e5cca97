// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHubOverflowKeepsFanOutAlive(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(zaptest.NewLogger(t))

	// Two members of the same channel; neither pump runs, so frames
	// queue up in the send buffers.
	stalled := &Conn{hub: hub, userID: 1, send: make(chan []byte, 1), done: make(chan struct{})}
	healthy := &Conn{hub: hub, userID: 2, send: make(chan []byte, 4), done: make(chan struct{})}
	hub.conns[1] = []*Conn{stalled}
	hub.conns[2] = []*Conn{healthy}
	hub.JoinChannel(7, 1)
	hub.JoinChannel(7, 2)

	// First frame fills the stalled buffer, second overflows it. Both
	// must still reach the healthy member, and the overflow must not
	// panic later sends.
	hub.BroadcastChannel(ctx, 7, Frame{Event: EventMessageNew})
	hub.BroadcastChannel(ctx, 7, Frame{Event: EventMessageNew})
	hub.BroadcastChannel(ctx, 7, Frame{Event: EventMessageNew})
	hub.SendUser(ctx, 1, Frame{Event: EventNotify})

	require.Len(t, healthy.send, 3)
	select {
	case <-stalled.done:
	default:
		t.Fatal("overflowed connection was not stopped")
	}

	// The stalled conn stays registered until its read side returns;
	// unregistering it is still clean.
	require.Equal(t, 2, hub.ConnectedUsers())
	hub.Unregister(stalled)
	require.Equal(t, 1, hub.ConnectedUsers())
}

func TestHubStopIsIdempotent(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := &Conn{hub: hub, userID: 3, send: make(chan []byte, 1), done: make(chan struct{})}
	hub.conns[3] = []*Conn{conn}

	conn.stop()
	conn.stop()
	conn.push([]byte("x")) // no-op after stop
	require.Empty(t, conn.send)

	hub.Unregister(conn)
	hub.Unregister(conn)
	require.Zero(t, hub.ConnectedUsers())
}
