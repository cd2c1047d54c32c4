package memlock

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Provide an adapter around logging stack
// (see log/zap, log/logrus, log/slog). If Logger is nil in Options, logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// trace logs one cache request when Options.Debug is set.
func (s *Service) trace(verb, key string, extra Fields) {
	if !s.debug {
		return
	}
	f := Fields{"verb": verb}
	if key != "" {
		f["key"] = key
	}
	for k, v := range extra {
		f[k] = v
	}
	s.log.Debug("memlock.request", f)
}
