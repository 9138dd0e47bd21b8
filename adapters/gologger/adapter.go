package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// DefaultName is the logger name used when callers pass none.
const DefaultName = "integrations"

// Resolve picks provider over logger over nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(loggerName(name), provider, logger)
}

// Component returns the logger for one part of the credential runtime, for
// example "integrations.vault" or "integrations.worker".
func Component(provider glog.LoggerProvider, logger glog.Logger, component string) glog.Logger {
	name := DefaultName
	if component = strings.TrimSpace(component); component != "" {
		name = DefaultName + "." + component
	}
	resolvedProvider, resolved := Resolve(name, provider, logger)
	if resolvedProvider != nil {
		if named := resolvedProvider.GetLogger(name); named != nil {
			return glog.Ensure(named)
		}
	}
	return glog.Ensure(resolved)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair and returns the go-job bridges for
// queue workers that run refresh and rotation jobs.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

func loggerName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return DefaultName
}
