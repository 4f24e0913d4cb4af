package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/config"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/repository"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

// StatsStore applies result statistics deltas.
type StatsStore interface {
	ApplyDeltas(ctx context.Context, deltas []repository.StatDelta) error
}

// ScoringWorker folds completed and regraded submissions into the
// per-exam result statistics.
type ScoringWorker struct {
	store StatsStore
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewScoringWorker(store StatsStore, rdb *redis.Client, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "scoring_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	batch := make([]model.ResultEvent, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.WithoutCancel(ctx), batch)
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.PersistScoresQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		var ev model.ResultEvent
		if err := json.Unmarshal([]byte(item[1]), &ev); err != nil {
			w.log.Error().Err(err).Msg("Invalid JSON payload")
			continue
		}
		batch = append(batch, ev)
	}
}

// ----------------------------------------------------------------
// Batch upsert with per-exam fallback
// ----------------------------------------------------------------

func (w *ScoringWorker) flushSafe(ctx context.Context, batch []model.ResultEvent) {
	if len(batch) == 0 {
		return
	}

	deltas := aggregateResults(batch)
	err := w.store.ApplyDeltas(ctx, deltas)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Msg("Bulk stats update failed, using fallback")

	// Deltas cannot be requeued as events; a failed exam is logged and dropped.
	for _, d := range deltas {
		if err := w.store.ApplyDeltas(ctx, []repository.StatDelta{d}); err != nil {
			w.log.Error().Err(err).
				Str("exam_id", d.ExamID.String()).
				Int("attempts", d.Attempts).
				Msg("Stats update dropped")
		}
	}
}

// aggregateResults sums events into one delta per exam, in order of first
// appearance. A regrade moves its submission between rating bands without
// counting another attempt.
func aggregateResults(events []model.ResultEvent) []repository.StatDelta {
	index := make(map[uuid.UUID]int)
	var out []repository.StatDelta
	for _, ev := range events {
		i, ok := index[ev.ExamID]
		if !ok {
			i = len(out)
			index[ev.ExamID] = i
			out = append(out, repository.StatDelta{ExamID: ev.ExamID, Ratings: map[model.Rating]int{}})
		}
		d := &out[i]

		d.ScoreSum += ev.TotalScore
		d.Ratings[ev.Rating]++
		if ev.PreviousScore != nil {
			d.ScoreSum -= *ev.PreviousScore
			if ev.PreviousRating != nil {
				d.Ratings[*ev.PreviousRating]--
			}
			continue
		}
		d.Attempts++
	}
	return out
}
