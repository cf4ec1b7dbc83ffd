// Package reindex reconciles the geo index with the authoritative store.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/geoindex"
	"github.com/geosocial/proximity/internal/metrics"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/store"
)

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize int           // rows read per store page
	Interval  time.Duration // pause between passes in Run
}

// Stats counts the index writes of one pass for one kind.
type Stats struct {
	Scanned  int
	Upserted int
	Removed  int
}

// Worker walks every kind in the store, indexes what is discoverable and
// removes index members that are gone or no longer discoverable.
type Worker struct {
	store store.Store
	index geoindex.Index
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// NewWorker constructs a Worker from dependencies.
func NewWorker(s store.Store, idx geoindex.Index, cfg Config, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &Worker{store: s, index: idx, cfg: cfg, log: log, now: time.Now}
}

// Run reconciles once immediately and then every Interval until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("reindex worker starting")
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("reindex pass")
	}
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("reindex worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				// next tick retries the whole pass
				w.log.Error().Err(err).Msg("reindex pass")
			}
		}
	}
}

// RunOnce reconciles every kind. A failing kind does not stop the others;
// the returned error joins all failures.
func (w *Worker) RunOnce(ctx context.Context) (map[model.Kind]Stats, error) {
	out := make(map[model.Kind]Stats, len(model.Kinds))
	var errs []error
	record := func(kind model.Kind, st Stats, err error) {
		out[kind] = st
		if err != nil {
			errs = append(errs, fmt.Errorf("reindex %s: %w", kind, err))
			return
		}
		w.log.Info().Str("kind", string(kind)).Int("scanned", st.Scanned).
			Int("upserted", st.Upserted).Int("removed", st.Removed).Msg("reindex pass complete")
	}

	st, err := reconcile(ctx, w, model.KindUser, w.store.Users())
	record(model.KindUser, st, err)
	st, err = reconcile(ctx, w, model.KindGroup, w.store.Groups())
	record(model.KindGroup, st, err)
	st, err = reconcile(ctx, w, model.KindActivity, w.store.Activities())
	record(model.KindActivity, st, err)

	return out, errors.Join(errs...)
}

func reconcile[T model.Entity](ctx context.Context, w *Worker, kind model.Kind, src store.Source[T]) (Stats, error) {
	var st Stats
	live := make(map[string]bool)
	after := ""
	for {
		page, err := src.Scan(ctx, after, w.cfg.BatchSize)
		if err != nil {
			return st, model.StoreUnavailable(string(kind)+".scan", err)
		}
		now := w.now()
		for _, e := range page {
			st.Scanned++
			c, ok := e.Position()
			if !ok || !e.Discoverable(now) || !geoindex.Indexable(c.Latitude) {
				continue
			}
			if err := w.index.Upsert(ctx, kind, e.EntityID(), c); err != nil {
				metrics.IndexErrorsTotal.WithLabelValues(string(kind), "reindex_upsert").Inc()
				return st, err
			}
			live[e.EntityID()] = true
			st.Upserted++
		}
		if len(page) < w.cfg.BatchSize {
			break
		}
		after = page[len(page)-1].EntityID()
	}
	metrics.ReindexedTotal.WithLabelValues(string(kind), "upsert").Add(float64(st.Upserted))

	members, err := w.index.Members(ctx, kind)
	if err != nil {
		return st, err
	}
	for _, id := range members {
		if live[id] {
			continue
		}
		// rows created after the scan passed them are not in live yet
		stale, err := isStale(ctx, src, id, w.now())
		if err != nil {
			return st, err
		}
		if !stale {
			continue
		}
		if err := w.index.Remove(ctx, kind, id); err != nil {
			metrics.IndexErrorsTotal.WithLabelValues(string(kind), "reindex_remove").Inc()
			return st, err
		}
		st.Removed++
	}
	metrics.ReindexedTotal.WithLabelValues(string(kind), "remove").Add(float64(st.Removed))
	return st, nil
}

func isStale[T model.Entity](ctx context.Context, src store.Source[T], id string, now time.Time) (bool, error) {
	e, err := src.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, model.StoreUnavailable("get", err)
	}
	c, ok := e.Position()
	return !ok || !e.Discoverable(now) || !geoindex.Indexable(c.Latitude), nil
}
