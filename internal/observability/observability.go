// Package observability configures structured logging for the CLI.
//
// Text and JSON formats write to stderr through log/slog handlers. The otel
// format routes slog records through the OpenTelemetry log SDK so they can be
// shipped over OTLP; the exporter follows the standard OTEL_EXPORTER_OTLP_*
// environment variables and falls back to stderr.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Format is a log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatOTel Format = "otel"
)

const scopeName = "github.com/florianilch/b2clogin"

// ShutdownFunc flushes and releases logging resources.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger for level and format and tags
// every record with a per-run ID. The returned function must be called before
// exit to flush buffered records.
func Instrument(ctx context.Context, level slog.Level, format string) (ShutdownFunc, error) {
	handler, shutdown, err := newHandler(ctx, level, Format(format), os.Stderr, nil)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(handler).With("run_id", uuid.NewString()))
	return shutdown, nil
}

// newHandler builds the handler for format. A nil exporter selects one from the environment.
func newHandler(ctx context.Context, level slog.Level, format Format, w io.Writer, exporter sdklog.Exporter) (slog.Handler, ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	switch format {
	case FormatText, "":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), noop, nil
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), noop, nil
	case FormatOTel:
		if exporter == nil {
			var err error
			exporter, err = newExporter(ctx, w)
			if err != nil {
				return nil, nil, fmt.Errorf("creating log exporter: %w", err)
			}
		}

		processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))
		loggerProvider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
		global.SetLoggerProvider(loggerProvider)

		// Spans are not exported; the provider gives log records trace and span IDs.
		tracerProvider := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tracerProvider)

		shutdown := func(ctx context.Context) error {
			return errors.Join(
				tracerProvider.Shutdown(ctx),
				loggerProvider.Shutdown(ctx),
			)
		}
		return otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(loggerProvider)), shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %q", format)
	}
}

// newExporter picks the OTLP transport requested by the environment, or
// stdout when no collector is configured.
func newExporter(ctx context.Context, w io.Writer) (sdklog.Exporter, error) {
	protocol := os.Getenv("OTEL_EXPORTER_OTLP_LOGS_PROTOCOL")
	if protocol == "" {
		protocol = os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	}
	endpointSet := os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""

	switch {
	case protocol == "grpc":
		return otlploggrpc.New(ctx)
	case strings.HasPrefix(protocol, "http/"), protocol == "" && endpointSet:
		return otlploghttp.New(ctx)
	case protocol == "":
		return stdoutlog.New(stdoutlog.WithWriter(w))
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %q", protocol)
	}
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
