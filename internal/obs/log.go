package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
				logrus.FieldKeyMsg:  "msg",
			},
		})
		logger.SetLevel(logrus.InfoLevel)
	})
	return logger
}

// SetLevel adjusts the shared logger level; unknown names keep the current level.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		Logger().WithField("level", name).Warn("unknown log level, keeping current")
		return
	}
	Logger().SetLevel(lvl)
}

// LogRequest emits a structured entry for a completed HTTP request.
func LogRequest(fields map[string]any) {
	Logger().WithFields(logrus.Fields(fields)).Info("request_complete")
}
