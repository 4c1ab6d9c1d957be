package core

// Logger is the app wide logger.
// expected args: error, map[string]interface{}, user.User (sets the person on error reports)
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
