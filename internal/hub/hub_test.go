package hub

import (
	"testing"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

func newTestClient() *Client {
	return NewClient(1, "test")
}

func TestHubAddRemove(t *testing.T) {
	h := New()
	c := newTestClient()
	h.Add(c)
	if h.Count() != 1 {
		t.Fatalf("expected 1 client, got %d", h.Count())
	}
	h.Remove(c)
	if h.Count() != 0 {
		t.Fatalf("expected 0 clients, got %d", h.Count())
	}
	// Remove again should be safe.
	h.Remove(c)
	select {
	case <-c.Closed:
	default:
		t.Fatal("expected removed client to be closed")
	}
}

func TestBroadcastDelivers(t *testing.T) {
	h := New()
	c := newTestClient()
	h.Add(c)
	h.Broadcast([]byte(`{"type":"feedback"}`))
	select {
	case msg := <-c.Out:
		if string(msg) != `{"type":"feedback"}` {
			t.Fatalf("unexpected message: %s", msg)
		}
	default:
		t.Fatal("expected message queued")
	}
}

func TestBroadcastDropPolicy(t *testing.T) {
	h := New()
	h.Policy = PolicyDrop
	c := newTestClient()
	h.Add(c)

	before := metrics.Snap().HubDrops
	h.Broadcast([]byte("a"))
	h.Broadcast([]byte("b")) // buffer of one: second must drop
	after := metrics.Snap().HubDrops
	if after != before+1 {
		t.Fatalf("expected 1 drop, got %d", after-before)
	}
	// Client must stay registered and open under drop policy.
	if h.Count() != 1 {
		t.Fatalf("expected client retained, count=%d", h.Count())
	}
	select {
	case <-c.Closed:
		t.Fatal("drop policy must not close the client")
	default:
	}
}

func TestBroadcastKickPolicy(t *testing.T) {
	h := New()
	h.Policy = PolicyKick
	c := newTestClient()
	h.Add(c)

	before := metrics.Snap().HubKicks
	h.Broadcast([]byte("a"))
	h.Broadcast([]byte("b")) // buffer of one: second must kick
	after := metrics.Snap().HubKicks
	if after != before+1 {
		t.Fatalf("expected 1 kick, got %d", after-before)
	}
	select {
	case <-c.Closed:
	default:
		t.Fatal("expected kicked client to be closed")
	}
}

func TestClientsIsCopy(t *testing.T) {
	h := New()
	c := newTestClient()
	h.Add(c)
	got := h.Clients()
	if len(got) != 1 || got[0] != c {
		t.Fatalf("unexpected client slice: %v", got)
	}
	h.Remove(c)
	// The slice taken before removal is unaffected.
	if len(got) != 1 {
		t.Fatalf("client slice mutated by Remove")
	}
}
