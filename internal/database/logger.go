package database

// Logger receives the debug and error events of a Connection.
type Logger interface {
	Debug(msg string)
	Error(msg string, err error)
}

// NopLogger discards everything. It is used when Open gets a nil Logger.
type NopLogger struct{}

func (NopLogger) Debug(string)        {}
func (NopLogger) Error(string, error) {}
