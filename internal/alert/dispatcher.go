package alert

import "go.uber.org/zap"

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []AlertConfig, logger *zap.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// Dispatch sends the event to all webhooks whose Events list matches
// event.Decision. Fires goroutines and does not block the caller.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	for _, cfg := range d.configs {
		if matches(cfg.Events, event) {
			go func(cfg AlertConfig) {
				if err := Send(cfg, event); err != nil {
					d.logger.Warn("alert webhook failed",
						zap.String("url", cfg.URL),
						zap.String("decision", event.Decision),
						zap.Error(err))
				}
			}(cfg)
		}
	}
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if e == event.Decision || e == "*" {
			return true
		}
	}
	return false
}
