package engine

import "log/slog"

// Default returns the native runtime when it is compiled in, otherwise the
// reference runtime together with ErrNativeEngineUnavailable so callers can
// surface the downgrade.
func Default(forceReference bool, logger *slog.Logger) (Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if forceReference {
		logger.Warn("reference runtime forced by configuration")
		return NewReferenceRuntime(logger), nil
	}

	if NativeAvailable() {
		native, err := NewNativeRuntime(logger)
		if err != nil {
			logger.Error("native runtime initialisation failed; using reference runtime", "error", err)
			return NewReferenceRuntime(logger), err
		}
		logger.Info("native runtime ready", "backends", native.Backends().String())
		return native, nil
	}

	logger.Warn("native backend disabled at build time; using reference runtime")
	return NewReferenceRuntime(logger), ErrNativeEngineUnavailable
}
