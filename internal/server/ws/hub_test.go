package ws

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestRegisterAndDropClient(t *testing.T) {
	h := NewHub(nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &client{hub: h, send: make(chan []byte, 1), subs: map[string]bool{ChannelMarkets: true}}
	h.register <- c
	waitFor(t, func() bool { return h.clientCount() == 1 })

	h.dropClient(c)
	waitFor(t, func() bool { return h.clientCount() == 0 })

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("unexpected payload on send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on deregistration")
	}
}

func TestDropClientReturnsAfterHubStopped(t *testing.T) {
	h := NewHub(nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(runDone)
	}()
	cancel()
	<-runDone

	c := &client{hub: h, send: make(chan []byte, 1)}
	finished := make(chan struct{})
	go func() {
		h.dropClient(c)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("dropClient blocked after the hub event loop stopped")
	}
}
