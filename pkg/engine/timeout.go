package engine

import (
	"fmt"
	"time"
)

// EvalTimeout is the default hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// evalResult passes evaluation results through channels.
type evalResult struct {
	scene  *Scene
	errors []EvalError
	err    error
}

// evaluation is one in-flight Evaluate call. Builtins fill scene while the
// script runs, so a timed-out evaluation can still say how far it got.
type evaluation struct {
	gen   uint64
	scene *Scene
	done  chan evalResult
}

func newEvaluation(gen uint64) *evaluation {
	return &evaluation{
		gen:   gen,
		scene: NewScene(),
		done:  make(chan evalResult, 1),
	}
}

// TimeoutError reports an evaluation cut off by the engine timeout.
type TimeoutError struct {
	After time.Duration
	Paths int // paths declared before the cutoff
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evaluation timed out after %s with %d path(s) declared", e.After, e.Paths)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// await waits for ev to finish. A result from a generation other than the
// current one is discarded with ErrSuperseded; the scene of a timed-out
// evaluation is never returned because its script is still running.
func (e *Engine) await(ev *evaluation) (*Scene, []EvalError, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case res := <-ev.done:
		if ev.gen != e.currentGeneration() {
			return nil, nil, ErrSuperseded
		}
		return res.scene, res.errors, res.err

	case <-timer.C:
		return nil, nil, &TimeoutError{After: e.timeout, Paths: ev.scene.NumPaths()}
	}
}
