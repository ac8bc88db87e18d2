package trigger

import (
	"context"
	"sync"
)

// Window runs d until it has produced one complete STARTED/ENDED pair and
// returns that pair. started is invoked as soon as the STARTED edge arrives
// so the caller can begin recording without waiting for the end of the
// window. The detector's context is cancelled once the ENDED edge is seen,
// which turns repeatable detectors into single-shot ones.
//
// ok is false when the detector returned without completing a window.
func Window(ctx context.Context, d Detector, started func(Event)) (start, end Event, ok bool, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		haveStart bool
		done      bool
	)
	err = d.Run(runCtx, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		switch ev.Kind {
		case KindStarted:
			if haveStart {
				return
			}
			haveStart = true
			start = ev
			if started != nil {
				started(ev)
			}
		case KindEnded:
			if !haveStart {
				return
			}
			end = ev
			done = true
			cancel()
		}
	})

	mu.Lock()
	defer mu.Unlock()
	if done {
		// A detector stopped by our own cancel is not an error.
		return start, end, true, nil
	}
	return start, end, false, err
}
