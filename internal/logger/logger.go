// internal/logger/logger.go
// Shared logrus logger for the avatar client.
// Output goes to a file under the user cache dir (or io.Discard) because
// stdout belongs to the TUI.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetOutput(openLogFile())
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})

	switch os.Getenv("AVATAR_LOG_LEVEL") {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "warn":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	default:
		Log.SetLevel(logrus.InfoLevel)
	}
}

// openLogFile returns a writer for the log file, or io.Discard when the
// cache dir is unavailable. Logging must never break the TUI.
func openLogFile() io.Writer {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return io.Discard
	}
	dir := filepath.Join(cacheDir, "avatar")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return io.Discard
	}
	f, err := os.OpenFile(filepath.Join(dir, "avatar.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return io.Discard
	}
	return f
}

// WithComponent returns an entry tagged with the component name.
func WithComponent(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
