package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/storage"
)

// Tape appends every curve event to a CSV file as it is published, in the
// same column layout as ExportTrades. Rows are flushed on an interval and
// on Close.
type Tape struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer

	records atomic.Uint64
	flushes atomic.Uint64

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ events.Handler = (*Tape)(nil)

// OpenTape opens path for appending, writing the header only into an empty
// file, so a tape can be continued across runs.
func OpenTape(path string, flushInterval time.Duration, log *zap.Logger) (*Tape, error) {
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create tape directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open tape: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat tape: %w", err)
	}

	t := &Tape{
		path:    path,
		logger:  log.Named("tape"),
		file:    file,
		writer:  csv.NewWriter(file),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if stat.Size() == 0 {
		if err := t.writer.Write(CSVHeaders()); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write tape header: %w", err)
		}
		t.writer.Flush()
	}

	go t.flushLoop(flushInterval)
	return t, nil
}

// Handle implements events.Handler.
func (t *Tape) Handle(_ context.Context, event events.Event) error {
	ev, ok := event.(*events.CurveEvent)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return fmt.Errorf("tape %s is closed", t.path)
	}
	if err := t.writer.Write(toCSV(storage.TradeFromEvent(ev))); err != nil {
		return fmt.Errorf("failed to write tape row: %w", err)
	}
	t.records.Add(1)
	return nil
}

// Flush writes buffered rows through to disk.
func (t *Tape) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

func (t *Tape) flushLocked() error {
	if t.file == nil {
		return nil
	}
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		return fmt.Errorf("tape writer error: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync tape: %w", err)
	}
	t.flushes.Add(1)
	return nil
}

func (t *Tape) flushLoop(interval time.Duration) {
	defer close(t.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Flush(); err != nil {
				t.logger.Error("Periodic tape flush failed", zap.String("file", t.path), zap.Error(err))
			}
		case <-t.stop:
			return
		}
	}
}

// Records is the number of rows written since the tape was opened.
func (t *Tape) Records() uint64 { return t.records.Load() }

// Close flushes and closes the file. Later calls return the first result.
func (t *Tape) Close() error {
	t.closeOnce.Do(func() {
		close(t.stop)
		<-t.stopped

		t.mu.Lock()
		defer t.mu.Unlock()
		err := t.flushLocked()
		if cerr := t.file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close tape: %w", cerr)
		}
		t.file = nil
		t.closeErr = err

		t.logger.Debug("Tape closed",
			zap.String("file", t.path),
			zap.Uint64("records", t.records.Load()),
			zap.Uint64("flushes", t.flushes.Load()))
	})
	return t.closeErr
}
