package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NamanArora/pay-proxy/internal/logging"
)

// StorageBackend defines the interface for different storage implementations
type StorageBackend interface {
	SaveCallLog(ctx context.Context, callLog *CallLog) error
	SaveCallLogsBatch(ctx context.Context, logs []*CallLog) error
	GetCallLogs(ctx context.Context, filter LogFilter) ([]*CallLog, error)
	GetCallLogByID(ctx context.Context, id string) (*CallLog, error)
	GetLogStats(ctx context.Context, filter LogFilter) (*LogStats, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// AsyncLogWriter handles asynchronous writing of call logs
type AsyncLogWriter struct {
	backend       StorageBackend
	logChannel    chan *CallLog
	batchSize     int
	flushInterval time.Duration
	workers       int
	enabled       bool
	skipOnError   bool
	logger        *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group

	// Metrics
	mutex         sync.RWMutex
	totalLogs     int64
	droppedLogs   int64
	failedBatches int64
	lastFlush     time.Time
}

// AsyncLogWriterConfig holds configuration for the async log writer
type AsyncLogWriterConfig struct {
	Backend       StorageBackend
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Workers       int
	Enabled       bool
	SkipOnError   bool
	Logger        *slog.Logger
}

// NewAsyncLogWriter creates a new async log writer and starts its workers
func NewAsyncLogWriter(config AsyncLogWriterConfig) *AsyncLogWriter {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if config.Workers <= 0 {
		config.Workers = 3
	}

	writer := &AsyncLogWriter{
		backend:       config.Backend,
		logChannel:    make(chan *CallLog, config.BufferSize),
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		workers:       config.Workers,
		enabled:       config.Enabled && config.Backend != nil,
		skipOnError:   config.SkipOnError,
		logger:        logging.OrDefault(config.Logger),
		lastFlush:     time.Now(),
	}

	if writer.enabled {
		writer.start()
	}

	return writer
}

// WriteLog queues a call log. It never blocks: a full buffer drops the entry.
func (w *AsyncLogWriter) WriteLog(callLog *CallLog) {
	if !w.enabled {
		return
	}

	select {
	case w.logChannel <- callLog:
		w.mutex.Lock()
		w.totalLogs++
		w.mutex.Unlock()
	default:
		w.mutex.Lock()
		w.droppedLogs++
		w.mutex.Unlock()

		if !w.skipOnError {
			w.logger.Warn("log channel full, dropping call log")
		}
	}
}

func (w *AsyncLogWriter) start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < w.workers; i++ {
		w.group.Go(func() error {
			w.worker(ctx)
			return nil
		})
	}
}

// worker processes logs from the channel in batches
func (w *AsyncLogWriter) worker(ctx context.Context) {
	batch := make([]*CallLog, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flushBatch(batch)
		batch = batch[:0]
		w.updateLastFlush()
	}

	for {
		select {
		case <-ctx.Done():
			// drain whatever is still buffered
			for {
				select {
				case callLog := <-w.logChannel:
					batch = append(batch, callLog)
					if len(batch) >= w.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}

		case callLog := <-w.logChannel:
			batch = append(batch, callLog)
			if len(batch) >= w.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// flushBatch writes a batch of logs to the storage backend
func (w *AsyncLogWriter) flushBatch(batch []*CallLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.backend.SaveCallLogsBatch(ctx, batch); err != nil {
		w.mutex.Lock()
		w.failedBatches++
		w.mutex.Unlock()

		if !w.skipOnError {
			w.logger.Error("failed to save call log batch", "entries", len(batch), "error", err)
		}
	}
}

func (w *AsyncLogWriter) updateLastFlush() {
	w.mutex.Lock()
	w.lastFlush = time.Now()
	w.mutex.Unlock()
}

// GetMetrics returns current metrics
func (w *AsyncLogWriter) GetMetrics() map[string]interface{} {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return map[string]interface{}{
		"enabled":           w.enabled,
		"total_logs":        w.totalLogs,
		"dropped_logs":      w.droppedLogs,
		"failed_batches":    w.failedBatches,
		"channel_depth":     len(w.logChannel),
		"channel_capacity":  cap(w.logChannel),
		"last_flush":        w.lastFlush,
		"workers":           w.workers,
		"batch_size":        w.batchSize,
		"flush_interval_ms": w.flushInterval.Milliseconds(),
	}
}

// GetDroppedCount returns the number of dropped logs
func (w *AsyncLogWriter) GetDroppedCount() int64 {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.droppedLogs
}

// Backend returns the storage backend the writer flushes to.
func (w *AsyncLogWriter) Backend() StorageBackend {
	return w.backend
}

// Close stops the workers after they flush buffered logs, then closes the
// backend. Call it only after the HTTP server has stopped accepting requests.
func (w *AsyncLogWriter) Close() error {
	if !w.enabled {
		return nil
	}

	w.logger.Info("shutting down async log writer")
	w.cancel()

	done := make(chan struct{})
	go func() {
		_ = w.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("all log workers finished")
	case <-time.After(30 * time.Second):
		w.logger.Warn("timeout waiting for log workers to finish")
	}

	if err := w.backend.Close(); err != nil {
		w.logger.Error("error closing storage backend", "error", err)
		return err
	}

	w.logger.Info("final log writer metrics", "metrics", w.GetMetrics())
	return nil
}
