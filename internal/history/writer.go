package history

import (
	"log/slog"
	"sync"
	"time"
)

// Writer decouples request handling from journal inserts: entries are
// buffered on a channel and flushed in batches by a background
// goroutine. When the buffer is full new entries are dropped, so a
// slow disk never blocks a power command.
type Writer struct {
	store         *Store
	logger        *slog.Logger
	ch            chan Entry
	stop          chan struct{}
	flushInterval time.Duration
	batchSize     int
	wg            sync.WaitGroup
}

func NewWriter(store *Store, flushInterval time.Duration, batchSize int, logger *slog.Logger) *Writer {
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	w := &Writer{
		store:         store,
		logger:        logger,
		ch:            make(chan Entry, batchSize*4),
		stop:          make(chan struct{}),
		flushInterval: flushInterval,
		batchSize:     batchSize,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, w.batchSize)
	flush := func() {
		for i := range batch {
			e := batch[i]
			if err := w.store.Insert(&e); err != nil {
				w.logger.Warn("Failed to journal outcome",
					"target", e.Target,
					"command", e.Command,
					"error", err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-w.ch:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush()
			}
		case <-w.stop:
			// Drain whatever arrived before the stop signal.
			for {
				select {
				case e := <-w.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Write enqueues an entry without blocking. Entries are dropped when
// the buffer is full.
func (w *Writer) Write(e Entry) {
	select {
	case w.ch <- e:
	default:
	}
}

// Close flushes pending entries and stops the background goroutine.
func (w *Writer) Close() {
	close(w.stop)
	w.wg.Wait()
}
