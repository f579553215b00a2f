package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
)

// HousekeepingService periodically drops signing keys whose overlap window
// has ended, both from the in-memory key set and from the store.
type HousekeepingService struct {
	Store      store.Store      // nil skips the database cleanup
	KeyManager *jwtx.KeyManager // nil skips the key set cleanup
	Logger     *slog.Logger
	Interval   time.Duration
	Clock      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to one hour.
func NewHousekeepingService(st store.Store, km *jwtx.KeyManager, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HousekeepingService{
		Store:      st,
		KeyManager: km,
		Logger:     logger,
		Interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop signals the worker and waits for an in-progress cleanup to finish.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup performs one pass. Each step is independent; a failing store
// does not stop the key set from being pruned.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock()
	}

	if s.KeyManager != nil {
		if pruned := s.KeyManager.Prune(now); len(pruned) > 0 {
			s.Logger.Info("pruned expired verification keys", "kids", pruned)
		}
	}

	if s.Store != nil {
		n, err := s.Store.SigningKeys().DeleteExpiredSigningKeys(ctx, now)
		if err != nil {
			s.Logger.Error("failed to delete expired signing keys", "error", err)
		} else if n > 0 {
			s.Logger.Info("deleted expired signing keys", "count", n)
		}
	}

	s.Logger.Debug("housekeeping cleanup completed")
}
