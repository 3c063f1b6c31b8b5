package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/broady/apistub"
)

// LoggingInterceptor creates an interceptor that logs outgoing calls using slog.
// It logs the start and end of each call, including duration and status.
func LoggingInterceptor(logger *slog.Logger) apistub.Interceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, req *http.Request, next apistub.Invoker) (*http.Response, error) {
		start := time.Now()
		call := callName(ctx)

		logger.InfoContext(ctx, "call started",
			slog.String("call", call),
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
		)

		resp, err := next(ctx, req)
		duration := time.Since(start)

		switch {
		case err != nil:
			logger.ErrorContext(ctx, "call failed",
				slog.String("call", call),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		case resp.StatusCode >= 400:
			logger.WarnContext(ctx, "call completed with error status",
				slog.String("call", call),
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", duration),
			)
		default:
			logger.InfoContext(ctx, "call completed",
				slog.String("call", call),
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", duration),
			)
		}

		return resp, err
	}
}

func callName(ctx context.Context) string {
	if info, ok := apistub.CallFromContext(ctx); ok {
		return info.Name()
	}
	return "unknown"
}
