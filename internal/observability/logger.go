package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opencontrol/ocbridge/internal/logging"
)

// InitLogger configures the global zerolog output (once, honoring the
// OCBRIDGE_LOG_* env overrides) and returns a logger tagged with the app
// name. All daemon logging flows through this single path.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
