package logger

// Writer is an object that provides a Log() function.
type Writer interface {
	Log(level Level, format string, args ...interface{})
}
