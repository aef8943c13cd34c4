package snapshot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Saver writes the state produced by export to a Store.
type Saver struct {
	store  Store
	export func() *State
	logger *zap.Logger
}

// NewSaver creates a Saver. export is called once per save.
func NewSaver(store Store, export func() *State, logger *zap.Logger) *Saver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{store: store, export: export, logger: logger}
}

// Save exports and stores one snapshot.
func (s *Saver) Save(ctx context.Context) error {
	st := s.export()
	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved",
		zap.Int("delegations", len(st.Delegations)),
		zap.Int("queued", len(st.Queue)))
	return nil
}

// Run saves every interval until ctx is cancelled. A zero interval
// returns immediately. Failed saves are logged and retried next tick.
func (s *Saver) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Save(ctx); err != nil {
				s.logger.Error("periodic snapshot failed", zap.Error(err))
			}
		}
	}
}
