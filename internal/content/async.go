package content

import (
	"context"

	"github.com/stmh/gsc-brain-interface/internal/logging"
	"github.com/stmh/gsc-brain-interface/internal/workerpool"
)

// Source performs one blocking load.
type Source interface {
	Fetch(ctx context.Context, rawURL string, stage Stage) (*Content, error)
}

// AsyncLoader runs loads on a worker pool and hands each Result to deliver,
// which posts it back into the player's event queue. Load calls never block.
type AsyncLoader struct {
	source  Source
	pool    *workerpool.Pool
	deliver func(Result)
}

// NewAsyncLoader returns a loader that fetches with source on pool.
func NewAsyncLoader(source Source, pool *workerpool.Pool, deliver func(Result)) *AsyncLoader {
	return &AsyncLoader{source: source, pool: pool, deliver: deliver}
}

// LoadPreview schedules a preview load.
func (l *AsyncLoader) LoadPreview(req Request) {
	req.Stage = StagePreview
	l.schedule(req)
}

// LoadFull schedules a full load.
func (l *AsyncLoader) LoadFull(req Request) {
	req.Stage = StageFull
	l.schedule(req)
}

func (l *AsyncLoader) schedule(req Request) {
	reqLog := logging.WithLoad(log, req.ID, req.URL)
	reqLog.Info("loading interface", "stage", req.Stage.String())

	ok := l.pool.Submit("load-"+req.Stage.String(), func(ctx context.Context) {
		c, err := l.source.Fetch(ctx, req.URL, req.Stage)
		if err != nil {
			reqLog.Warn("load failed", "stage", req.Stage.String(), logging.KeyError, err)
		}
		l.deliver(Result{Request: req, Content: c, Err: err})
	})
	if !ok {
		// The caller is the event loop itself; deliver from another
		// goroutine so a full inbox cannot deadlock it.
		go l.deliver(Result{Request: req, Err: unavailable("loader busy, %s load of %s dropped", req.Stage, req.URL)})
	}
}
