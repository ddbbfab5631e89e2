package event

import (
	"context"

	"golang.org/x/sync/errgroup"
)

var workers []Worker

// Worker handles a long running consumer: the correlator on the gateway side or the
// calculator on the evaluating side. Start blocks until ctx is done.
type Worker interface {
	Start(ctx context.Context, errChan chan error)
}

// InitEvent registers the workers of this process and returns them as beans.
func InitEvent(ws ...Worker) []interface{} {
	var beans []interface{}
	for _, w := range ws {
		if w == nil {
			continue
		}
		workers = append(workers, w)
		beans = append(beans, w)
	}
	return beans
}

// StartEventWorker starts all event workers and waits for them to return.
func StartEventWorker(ctx context.Context, errChan chan error) {
	var g errgroup.Group
	for i := range workers {
		w := workers[i]
		g.Go(func() error {
			w.Start(ctx, errChan)
			return nil
		})
	}
	_ = g.Wait()
}

// GetWorkers get all registered workers
func GetWorkers() []Worker {
	return workers
}

// ResetWorkers clears the registry.
func ResetWorkers() {
	workers = nil
}
