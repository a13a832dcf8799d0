package index

import (
	"testing"

	"go.uber.org/goleak"
)

// censusWorker is started in init by go.opencensus.io, which the genai
// client pulls in.
const censusWorker = "go.opencensus.io/stats/view.(*worker).start"

// verifyNoLeaks snapshots the running goroutines; the returned func fails t
// if any goroutine started since is still alive.
//
//	defer verifyNoLeaks(t)()
func verifyNoLeaks(t *testing.T) func() {
	t.Helper()
	opts := []goleak.Option{goleak.IgnoreCurrent(), goleak.IgnoreTopFunction(censusWorker)}
	return func() {
		t.Helper()
		goleak.VerifyNone(t, opts...)
	}
}

func TestVerifyNoLeaks_IgnoresRunningGoroutines(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	go func() { <-stop }()

	// Started before the snapshot, so it is not reported.
	verifyNoLeaks(t)()
}
