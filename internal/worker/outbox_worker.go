package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"shareit/internal/database"
	"shareit/internal/events"
	"shareit/internal/metrics"
	"shareit/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	outboxQueueKey      = "shareit:outbox"
	outboxDeadLetterKey = "shareit:outbox:deadletter"
)

// OutboxStore is the durable side of the outbox.
type OutboxStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error)
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// bookingRef is the part of any booking event payload the outbox needs.
type bookingRef struct {
	BookingID int64 `json:"booking_id"`
}

// OutboxWorker persists booking events to sync_queue and delivers them to a
// Sink with retries. Redis carries the hot queue; the table is polled for
// retries and anything the hot queue lost.
type OutboxWorker struct {
	store         OutboxStore
	sink          events.Sink
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewOutboxWorker builds a worker with sane defaults. redisClient may be nil.
func NewOutboxWorker(
	store OutboxStore,
	sink events.Sink,
	redisClient *redis.Client,
	retry RetryPolicy,
	pollInterval time.Duration,
	logger *zerolog.Logger,
) *OutboxWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		store:         store,
		sink:          sink,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: outboxQueueKey,
		deadLetterKey: outboxDeadLetterKey,
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        logger,
	}
}

// Subscribe routes the bus's booking events into the outbox.
func (w *OutboxWorker) Subscribe(bus *events.EventBus) {
	for _, eventType := range events.BookingEvents {
		bus.Subscribe(eventType, func(ev *events.Event) error {
			return w.EnqueueEvent(context.Background(), ev.Type, ev.Payload)
		})
	}
}

// EnqueueEvent persists the event and schedules it via redis or the in-memory queue.
func (w *OutboxWorker) EnqueueEvent(ctx context.Context, eventType string, payload []byte) error {
	if eventType == "" {
		return errors.New("event type is required")
	}

	var ref bookingRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if ref.BookingID == 0 {
		return errors.New("booking id is required")
	}

	task := models.SyncTask{
		TaskType:  eventType,
		BookingID: ref.BookingID,
		Payload:   string(payload),
		Status:    models.SyncStatusPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist outbox task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("outbox: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("outbox: in-memory queue full, task left to polling")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	if failed, err := w.store.GetFailedSyncTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("outbox: count failed")
	} else if len(failed) > 0 {
		// такие события сами не переотправляются
		w.logger.Warn().Int("failed", len(failed)).Int64("latest_id", failed[0].ID).Msg("outbox has dead-lettered events")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		processed, err := w.ProcessPending(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("outbox: fetch pending")
		}
		if err != nil || processed == 0 {
			w.sleep(ctx)
		}
	}
}

// ProcessPending delivers due pending/retry rows and reports how many it took.
func (w *OutboxWorker) ProcessPending(ctx context.Context) (int, error) {
	tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *OutboxWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Warn().Err(err).Msg("outbox: redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("outbox: decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *OutboxWorker) processTask(ctx context.Context, queued *models.SyncTask) {
	// Queue entries can be stale copies; the row is the source of truth.
	task, err := w.store.GetSyncTask(ctx, queued.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", queued.ID).Msg("outbox: load task")
		return
	}
	if task.Status == models.SyncStatusCompleted || task.Status == models.SyncStatusFailed {
		return
	}

	key := strconv.FormatInt(task.BookingID, 10)
	if err := w.sink.Deliver(ctx, task.TaskType, key, []byte(task.Payload)); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncOutbox("delivered")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("outbox: mark completed")
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		metrics.IncOutbox("dead_letter")
		w.logger.Error().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Msg("outbox: delivery failed permanently")
		if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("outbox: mark failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	metrics.IncOutbox("retry")
	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Time("next_retry_at", nextTime).Msg("outbox: delivery failed, will retry")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("outbox: mark retry")
	}
}

func (w *OutboxWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("outbox: deadletter push")
	}
}

var _ OutboxStore = (*database.DB)(nil)
