package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// outcome is one finished service operation as seen by logs and metrics.
type outcome struct {
	operation string
	status    string
	elapsed   time.Duration
	err       error
	fields    map[string]any
}

func newOutcome(operation string, startedAt time.Time, err error, fields map[string]any) outcome {
	operation = strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
	if operation == "" {
		operation = "unknown"
	}
	out := outcome{
		operation: operation,
		status:    "success",
		elapsed:   time.Since(startedAt),
		err:       err,
		fields:    cloneFields(fields),
	}
	if err != nil {
		out.status = "failure"
		maps.Copy(out.fields, errorFields(err))
	}
	out.fields["event_type"] = out.operation
	out.fields["status"] = out.status
	out.fields["duration_ms"] = out.elapsed.Milliseconds()
	return out
}

// tags keeps metric cardinality low: operation, status and, when known, the
// provider and error kind.
func (o outcome) tags() map[string]string {
	tags := map[string]string{"operation": o.operation, "status": o.status}
	for _, key := range []string{"provider_id", "error_kind"} {
		if value, ok := o.fields[key].(string); ok && strings.TrimSpace(value) != "" {
			tags[key] = strings.TrimSpace(value)
		}
	}
	return tags
}

func (s *Service) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if s == nil {
		return
	}
	result := newOutcome(operation, startedAt, err, fields)
	if s.metricsRecorder != nil {
		tags := result.tags()
		s.metricsRecorder.IncCounter(ctx, metricName(result.operation, "total"), 1, cloneTags(tags))
		s.metricsRecorder.ObserveHistogram(ctx, metricName(result.operation, "duration_ms"), float64(result.elapsed.Milliseconds()), cloneTags(tags))
	}
	if result.err != nil {
		s.logError(ctx, result.operation+" failed", result.fields)
		return
	}
	s.logInfo(ctx, result.operation+" succeeded", result.fields)
}

// errorFields describes err for logs. Provider response bodies are logged
// here and nowhere else.
func errorFields(err error) map[string]any {
	fields := map[string]any{"error": err.Error()}
	if kind, ok := KindOf(err); ok {
		fields["error_kind"] = string(kind)
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		fields["error_category"] = richErr.Category.String()
		fields["error_severity"] = richErr.Severity.String()
		if richErr.TextCode != "" {
			fields["error_code"] = richErr.TextCode
		}
		if len(richErr.Metadata) > 0 {
			fields["error_metadata"] = RedactSensitiveMap(richErr.Metadata)
		}
	}
	if body := ProviderResponseBody(err); body != "" {
		fields["provider_response"] = body
	}
	return fields
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	if logger, args := s.fieldLogger(ctx, fields); logger != nil {
		logger.Info(message, args...)
	}
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	if logger, args := s.fieldLogger(ctx, fields); logger != nil {
		logger.Error(message, args...)
	}
}

// fieldLogger redacts fields once and binds them to the logger when it
// supports WithFields. The same fields come back as key/value args.
func (s *Service) fieldLogger(ctx context.Context, fields map[string]any) (Logger, []any) {
	if s == nil || s.logger == nil {
		return nil, nil
	}
	redacted := RedactSensitiveMap(fields)
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(redacted))
	}
	return logger, flattenFields(redacted)
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	maps.Copy(out, fields)
	return out
}

// flattenFields turns fields into sorted key/value args.
func flattenFields(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}
