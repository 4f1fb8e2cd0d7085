package trigger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voicerelay/internal/config"
)

var Module = fx.Module("trigger",
	fx.Provide(NewSource),
)

// NewSource returns the trigger selected by trigger.mode.
func NewSource(cfg *config.Config, logger *zap.Logger) Source {
	tc := cfg.Trigger
	if tc.Mode == config.TriggerModeSchedule {
		logger.Info("Using scheduled trigger",
			zap.Duration("press_after", tc.PressAfter),
			zap.Duration("hold_for", tc.HoldFor))
		return NewSchedule(logger, tc.PressAfter, tc.HoldFor)
	}
	logger.Info("Using keyboard trigger; press space to talk, Ctrl+C to quit")
	return NewKeyboard(logger)
}
