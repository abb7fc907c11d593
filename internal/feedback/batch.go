package feedback

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"cohorte/api/internal/lines"
	"cohorte/api/internal/persona"
)

// Batch issues one request per persona concurrently and waits for all of
// them. Results keep the order of personas. onDone, when set, is called
// from the worker goroutines as each persona resolves.
func (r *Requester) Batch(ctx context.Context, personas []persona.Persona, items []lines.IndexedLine, maxParallel int, onDone func(Result)) ([]Result, error) {
	results := make([]Result, len(personas))
	g, gctx := errgroup.WithContext(ctx)
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}
	for i, p := range personas {
		g.Go(func() error {
			res, err := r.Request(gctx, p, items)
			if err != nil {
				return err
			}
			if res.Err != nil {
				log.Printf("feedback: persona %s: serving stub: %v", p.DisplayName(), res.Err)
			}
			results[i] = res
			if onDone != nil {
				onDone(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
