package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	gcplogger "github.com/fitcalc/site-backend/internal/infra/platform/gcp/logger"
)

const serviceName = "site-backend"

// New は LOG_PROVIDER に応じたロガーを返します。未指定は gcp（JSON）。
func New(provider string, level slog.Level) *slog.Logger {
	return newWithWriter(os.Stdout, provider, level)
}

func newWithWriter(w io.Writer, provider string, level slog.Level) *slog.Logger {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "text", "local":
		// ローカル開発用の人間向け出力
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	default:
		return gcplogger.New(w, level, serviceName)
	}
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "-4", "debug":
		return slog.LevelDebug
	case "0", "info":
		return slog.LevelInfo
	case "4", "warn", "warning":
		return slog.LevelWarn
	case "8", "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
