package gate

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGate_AdmitRelease(t *testing.T) {
	var g Gate

	if g.Occupied() {
		t.Fatal("zero gate should be free")
	}
	if !g.TryAdmit() {
		t.Fatal("first TryAdmit should succeed")
	}
	if g.TryAdmit() {
		t.Fatal("second TryAdmit should be rejected while occupied")
	}
	if !g.Occupied() {
		t.Error("gate should report occupied")
	}
	if !g.Release() {
		t.Error("Release of a held gate should report true")
	}
	if g.Release() {
		t.Error("Release of a free gate should report false")
	}
	if !g.TryAdmit() {
		t.Error("gate should admit again after Release")
	}
}

// TestGate_ConcurrentAdmit hammers TryAdmit from many goroutines and
// checks that exactly one wins each round.
func TestGate_ConcurrentAdmit(t *testing.T) {
	var g Gate

	for round := 0; round < 50; round++ {
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			start   = make(chan struct{})
		)
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if g.TryAdmit() {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if n := winners.Load(); n != 1 {
			t.Fatalf("round %d: %d goroutines admitted, want 1", round, n)
		}
		g.Release()
	}
}
