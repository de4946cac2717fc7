package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"QuantDesk/internal/domain/models"
	"QuantDesk/pkg/cache"
	applogger "QuantDesk/pkg/logger"
)

// RunComparator owns the set of completed run summaries. Summaries are
// immutable once stored; a re-run under the same id supersedes the earlier
// one. Listing is read-only and sorted by id so comparison tables render
// stably.
type RunComparator struct {
	mu    sync.RWMutex
	runs  map[string]models.RunSummary
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewRunComparator(cacheSvc cache.Service, ttl time.Duration, l *applogger.Logger) *RunComparator {
	if l == nil {
		l = applogger.Nop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RunComparator{
		runs:  make(map[string]models.RunSummary),
		cache: cacheSvc,
		ttl:   ttl,
		l:     l,
	}
}

// Put stores a completed summary, replacing any earlier run with the same
// id.
func (c *RunComparator) Put(ctx context.Context, s models.RunSummary) {
	c.mu.Lock()
	_, replaced := c.runs[s.ID]
	c.runs[s.ID] = s
	c.mu.Unlock()

	if c.cache != nil {
		_ = c.cache.Set(ctx, cache.Key("runsummary", s.ID), s, c.ttl)
	}
	c.l.Debug("run summary stored",
		applogger.String("id", s.ID),
		applogger.Bool("replaced", replaced),
	)
}

// Get returns one summary by id.
func (c *RunComparator) Get(id string) (models.RunSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.runs[id]
	return s, ok
}

// List returns all summaries sorted by id, optionally filtered by symbol.
func (c *RunComparator) List(symbol string) []models.RunSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.RunSummary, 0, len(c.runs))
	for _, s := range c.runs {
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes a summary by id.
func (c *RunComparator) Delete(ctx context.Context, id string) {
	c.mu.Lock()
	delete(c.runs, id)
	c.mu.Unlock()
	if c.cache != nil {
		_ = c.cache.Delete(ctx, cache.Key("runsummary", id))
	}
}
