package dbconn

import (
	"sync"
	"testing"
)

// Server-side prepared statements survive rollback and live for the whole
// session, so two probes landing on the same pooled connection must never
// reuse a statement name.
func TestProbeNameNeverRepeats(t *testing.T) {
	const workers = 8
	const perWorker = 100

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				name := probeName()
				mu.Lock()
				if seen[name] {
					t.Errorf("statement name %q handed out twice", name)
				}
				seen[name] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("got %d distinct names, want %d", len(seen), workers*perWorker)
	}
}
