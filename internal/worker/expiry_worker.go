package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/metrics"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"go.uber.org/zap"
)

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// ScanInterval is the interval between sweeps
	ScanInterval time.Duration
	// BatchSize is the number of bookings fetched per page
	BatchSize int
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		ScanInterval: 30 * time.Second,
		BatchSize:    100,
	}
}

// ExpiryService is the part of the booking service the sweeper drives
type ExpiryService interface {
	ListExpiredReserved(ctx context.Context, limit int) ([]*domain.Booking, error)
	MarkExpired(ctx context.Context, bookingID string) (bool, error)
}

// ExpiryWorker expires RESERVED bookings whose hold has lapsed and frees their slots
type ExpiryWorker struct {
	bookings ExpiryService
	config   *ExpiryWorkerConfig
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	// Stats
	totalExpired     int64
	totalFailed      int64
	lastScanTime     time.Time
	lastExpiredCount int
}

// ExpiryWorkerStats is a snapshot of sweeper activity
type ExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	TotalFailed      int64     `json:"total_failed"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(bookings ExpiryService, config *ExpiryWorkerConfig, log *logger.Logger) *ExpiryWorker {
	if config == nil {
		config = DefaultExpiryWorkerConfig()
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if log == nil {
		log = logger.Get()
	}

	return &ExpiryWorker{
		bookings: bookings,
		config:   config,
		log:      log,
	}
}

// Start starts the sweep loop in the background
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	stopCh := make(chan struct{})
	w.stopCh = stopCh
	w.mu.Unlock()

	w.log.Info("starting expiry worker",
		zap.Duration("interval", w.config.ScanInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(1)
	go w.loop(ctx, stopCh)

	return nil
}

// Stop stops the expiry worker and waits for the current sweep
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh := w.stopCh
	w.mu.Unlock()

	w.log.Info("stopping expiry worker")
	close(stopCh)
	w.wg.Wait()
	w.log.Info("expiry worker stopped")
}

func (w *ExpiryWorker) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every lapsed hold, page by page, and returns how many
// bookings it expired. Failures are logged and picked up by the next sweep.
func (w *ExpiryWorker) RunOnce(ctx context.Context) int {
	started := time.Now()
	expired, failed := 0, 0

	for ctx.Err() == nil {
		batch, err := w.bookings.ListExpiredReserved(ctx, w.config.BatchSize)
		if err != nil {
			w.log.Error("failed to list expired bookings", zap.Error(err))
			break
		}

		progressed := 0
		for _, b := range batch {
			ok, err := w.bookings.MarkExpired(ctx, b.ID)
			if err != nil {
				failed++
				w.log.Error("failed to expire booking", zap.String("booking_id", b.ID), zap.Error(err))
				continue
			}
			progressed++
			if ok {
				expired++
			}
		}

		// A short page is the last one; a page with no progress would repeat forever
		if len(batch) < w.config.BatchSize || progressed == 0 {
			break
		}
	}

	w.mu.Lock()
	w.totalExpired += int64(expired)
	w.totalFailed += int64(failed)
	w.lastScanTime = started
	w.lastExpiredCount = expired
	w.mu.Unlock()

	metrics.RecordSweep(ctx, time.Since(started).Seconds(), expired)
	if expired > 0 || failed > 0 {
		w.log.Info("expiry sweep finished",
			zap.Int("expired", expired),
			zap.Int("failed", failed),
			zap.Duration("took", time.Since(started)),
		)
	}
	return expired
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		TotalFailed:      w.totalFailed,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}
