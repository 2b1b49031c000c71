package keylock

import (
	"sync"
	"testing"
)

func TestSameKeySameStripe(t *testing.T) {
	s := New(8)
	if s.stripe("42") != s.stripe("42") {
		t.Fatal("same key mapped to different stripes")
	}
}

func TestDoSerialisesKey(t *testing.T) {
	s := New(4)
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do("user-1", func() error {
				v := counter
				v++
				counter = v
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 200 {
		t.Fatalf("counter = %d, want 200", counter)
	}
}

func TestNewDefaultsStripeCount(t *testing.T) {
	if got := len(New(0).stripes); got != DefaultStripes {
		t.Fatalf("stripes = %d, want %d", got, DefaultStripes)
	}
}
