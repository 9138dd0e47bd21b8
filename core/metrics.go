package core

import (
	"context"
	"maps"
	"strings"
)

const metricPrefix = "integrations."

// NopMetricsRecorder is the default recorder.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// metricName builds integrations.<operation>.<suffix>.
func metricName(operation, suffix string) string {
	return metricPrefix + strings.Trim(operation, ".") + "." + strings.Trim(suffix, ".")
}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	maps.Copy(out, tags)
	return out
}

var _ MetricsRecorder = NopMetricsRecorder{}
