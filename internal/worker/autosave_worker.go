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
)

const (
	AnswerBatchSize    = 200
	AnswerBatchTimeout = time.Second
	AnswerPollTimeout  = time.Second
	answerRetryDelay   = 5 * time.Second
)

// AnswerStore persists captured answers.
type AnswerStore interface {
	SaveAnswers(ctx context.Context, records []model.AnswerRecord) (int64, error)
}

// AutosaveWorker consumes the answer queue and writes answers onto their
// submission rows in batches.
type AutosaveWorker struct {
	store AnswerStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(store AnswerStore, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled, then flushes the
// pending batch and drains the queue. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]model.AnswerRecord, 0, AnswerBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AnswerBatchSize || time.Since(lastFlush) >= AnswerBatchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			shutdownCtx := context.WithoutCancel(ctx)
			w.flush(shutdownCtx, batch)
			w.drain(shutdownCtx)
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, AnswerPollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		var rec model.AnswerRecord
		if err := json.Unmarshal([]byte(item[1]), &rec); err != nil {
			w.log.Error().Err(err).Msg("Invalid answer record")
			continue
		}
		batch = append(batch, rec)
	}
}

// flush persists a batch. On failure the records go back on the queue.
func (w *AutosaveWorker) flush(ctx context.Context, batch []model.AnswerRecord) bool {
	if len(batch) == 0 {
		return true
	}

	records := collapseAnswers(batch)
	n, err := w.store.SaveAnswers(ctx, records)
	if err != nil {
		w.log.Error().Err(err).Int("count", len(records)).Msg("Persist error, requeueing")
		w.requeue(ctx, records)
		sleep(ctx, answerRetryDelay)
		return false
	}

	w.log.Debug().Int("received", len(batch)).Int64("written", n).Msg("Answers persisted")
	return true
}

func (w *AutosaveWorker) requeue(ctx context.Context, records []model.AnswerRecord) {
	pipe := w.rdb.Pipeline()
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("Requeue failed, answers remain in the submission cache")
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raws, err := w.rdb.LPopCount(ctx, config.WorkerKey.PersistAnswersQueue, AnswerBatchSize).Result()
		if err != nil || len(raws) == 0 {
			break
		}

		batch := make([]model.AnswerRecord, 0, len(raws))
		for _, raw := range raws {
			var rec model.AnswerRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				w.log.Error().Err(err).Msg("Drain unmarshal error")
				continue
			}
			batch = append(batch, rec)
		}
		if !w.flush(ctx, batch) {
			break
		}
		drained += len(batch)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

type answerKey struct {
	submission uuid.UUID
	question   uuid.UUID
}

// collapseAnswers keeps the newest record per submission row, in order of
// first appearance.
func collapseAnswers(batch []model.AnswerRecord) []model.AnswerRecord {
	index := make(map[answerKey]int, len(batch))
	out := make([]model.AnswerRecord, 0, len(batch))
	for _, rec := range batch {
		k := answerKey{rec.SubmissionID, rec.QuestionID}
		if i, ok := index[k]; ok {
			if !rec.AnsweredAt.Before(out[i].AnsweredAt) {
				out[i] = rec
			}
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
