package peer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/globepay/meshpay/config"
)

func testOverlayConfig() *config.OverlayConfig {
	// Long announce, short reconnect: tests drive connects directly
	return &config.OverlayConfig{AnnounceIntervalMs: 60000, ReconnectDelayMs: 20}
}

func TestConnectRegistersBothSides(t *testing.T) {
	hub := NewMemHub()
	o1 := NewOverlay(hub.NewTransport("A"), testOverlayConfig())
	o2 := NewOverlay(hub.NewTransport("B"), testOverlayConfig())

	var mu sync.Mutex
	hooked := []string{}
	o1.SetConnectHook(func(peerID string) {
		mu.Lock()
		hooked = append(hooked, peerID)
		mu.Unlock()
	})

	if err := o1.Connect(context.Background(), "B"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !o1.IsConnected("B") {
		t.Fatal("A should see B connected")
	}
	if !o2.IsConnected("A") {
		t.Fatal("B should see A connected")
	}
	if o1.Count() != 1 || o2.Count() != 1 {
		t.Fatalf("Expected 1 active connection each, got %d and %d", o1.Count(), o2.Count())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hooked) != 1 || hooked[0] != "B" {
		t.Fatalf("Connect hook should fire once for B, got %v", hooked)
	}
}

func TestConnectSelfAndDuplicateAreNoOps(t *testing.T) {
	hub := NewMemHub()
	o1 := NewOverlay(hub.NewTransport("A"), testOverlayConfig())
	NewOverlay(hub.NewTransport("B"), testOverlayConfig())

	if err := o1.Connect(context.Background(), "A"); err != nil {
		t.Fatalf("Self connect should be a no-op, got %v", err)
	}
	if o1.Count() != 0 {
		t.Fatal("Self connect must not register")
	}

	hooks := 0
	o1.SetConnectHook(func(string) { hooks++ })
	if err := o1.Connect(context.Background(), "B"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := o1.Connect(context.Background(), "B"); err != nil {
		t.Fatalf("Duplicate connect should be a no-op, got %v", err)
	}
	if o1.Count() != 1 {
		t.Fatalf("Duplicate connect must not double-register, count = %d", o1.Count())
	}
	if hooks != 1 {
		t.Fatalf("Connect hook should fire once, fired %d times", hooks)
	}
}

func TestConnectUnknownPeerFails(t *testing.T) {
	hub := NewMemHub()
	o1 := NewOverlay(hub.NewTransport("A"), testOverlayConfig())
	if err := o1.Connect(context.Background(), "ghost"); err == nil {
		t.Fatal("Connecting to an unknown peer should fail")
	}
	if o1.Count() != 0 {
		t.Fatal("Failed connect must not register")
	}
}

func TestBroadcastSkipsExcludedPeer(t *testing.T) {
	hub := NewMemHub()
	o1 := NewOverlay(hub.NewTransport("A"), testOverlayConfig())
	o2 := NewOverlay(hub.NewTransport("B"), testOverlayConfig())
	o3 := NewOverlay(hub.NewTransport("C"), testOverlayConfig())

	var mu sync.Mutex
	got := map[string]int{}
	recorder := func(id string) MessageHandler {
		return func(from string, data []byte) {
			mu.Lock()
			got[id]++
			mu.Unlock()
		}
	}
	o2.SetMessageHandler(recorder("B"))
	o3.SetMessageHandler(recorder("C"))

	if err := o1.Connect(context.Background(), "B"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := o1.Connect(context.Background(), "C"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	delivered := o1.Broadcast([]byte("hello"), "B")
	if delivered != 1 {
		t.Fatalf("Expected 1 delivery, got %d", delivered)
	}
	mu.Lock()
	defer mu.Unlock()
	if got["B"] != 0 || got["C"] != 1 {
		t.Fatalf("Exclusion not honored: %v", got)
	}
}

func TestConnectedPeerIDsSorted(t *testing.T) {
	hub := NewMemHub()
	o1 := NewOverlay(hub.NewTransport("A"), testOverlayConfig())
	NewOverlay(hub.NewTransport("C"), testOverlayConfig())
	NewOverlay(hub.NewTransport("B"), testOverlayConfig())

	for _, id := range []string{"C", "B"} {
		if err := o1.Connect(context.Background(), id); err != nil {
			t.Fatalf("Connect %s failed: %v", id, err)
		}
	}
	ids := o1.ConnectedPeerIDs()
	if len(ids) != 2 || ids[0] != "B" || ids[1] != "C" {
		t.Fatalf("Expected sorted [B C], got %v", ids)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	hub := NewMemHub()
	t1 := hub.NewTransport("A")
	o1 := NewOverlay(t1, testOverlayConfig())
	o2 := NewOverlay(hub.NewTransport("B"), testOverlayConfig())
	o1.SetOnline(true)
	o2.SetOnline(true)

	if err := o1.Connect(context.Background(), "B"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t1.Drop("B")
	if o1.IsConnected("B") {
		t.Fatal("Drop should clear the active set")
	}

	// The fixed-delay retry relinks both sides
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o1.IsConnected("B") && o2.IsConnected("A") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Peers did not reconnect after drop")
}

func TestNoReconnectWhileOffline(t *testing.T) {
	hub := NewMemHub()
	t1 := hub.NewTransport("A")
	o1 := NewOverlay(t1, testOverlayConfig())
	NewOverlay(hub.NewTransport("B"), testOverlayConfig())
	o1.SetOnline(false)

	if err := o1.Connect(context.Background(), "B"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t1.Drop("B")

	time.Sleep(100 * time.Millisecond)
	if o1.IsConnected("B") {
		t.Fatal("Offline overlay must not reconnect")
	}
}

func TestTouchTracksKnownPeers(t *testing.T) {
	hub := NewMemHub()
	o1 := NewOverlay(hub.NewTransport("A"), testOverlayConfig())

	o1.Touch("X")
	o1.Touch("A") // self, ignored
	o1.Touch("")  // empty, ignored

	known := o1.KnownPeers()
	if len(known) != 1 || known[0].PeerID != "X" {
		t.Fatalf("Expected known set [X], got %v", known)
	}
	if known[0].Connected {
		t.Fatal("Touched peer is known, not connected")
	}
	if known[0].LastSeen.IsZero() {
		t.Fatal("Touch should stamp lastSeen")
	}
}
