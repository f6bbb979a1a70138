package core

// Logger is implemented by the logging services.
// args may hold errors, maps of extra data or an Actor.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies the person a logged event is about (reported to Rollbar as the person).
type Actor struct {
	ID    string
	Name  string
	Email string
}
