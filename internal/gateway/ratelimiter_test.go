package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPermitPoolAcquireExhausts(t *testing.T) {
	t.Parallel()

	p := newPermitPool(3)
	for i := 0; i < 3; i++ {
		if !p.acquire() {
			t.Fatalf("acquire %d failed, want success", i)
		}
	}
	if p.acquire() {
		t.Error("acquire succeeded after pool exhausted")
	}
}

func TestPermitPoolRefillNeverExceedsMax(t *testing.T) {
	t.Parallel()

	p := newPermitPool(2)
	p.acquire()
	p.refill()
	p.refill()

	if !p.acquire() || !p.acquire() {
		t.Fatal("expected two permits available after refill")
	}
	if p.acquire() {
		t.Error("refill should never exceed max")
	}
}

func TestReplenisherRefillsRegisteredClients(t *testing.T) {
	t.Parallel()

	r := NewRegistry(5)
	alice := uuid.New()
	aliceClient := testClient(alice, "alice")
	aliceClient.rateLimit = newPermitPool(1)
	aliceClient.rateLimit.acquire()
	r.Join("general", alice, aliceClient)

	rp := NewReplenisher(r, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	go rp.Run(ctx)
	defer rp.Stop()

	deadline := time.After(200 * time.Millisecond)
	for {
		if aliceClient.rateLimit.acquire() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("permit pool was never refilled")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
