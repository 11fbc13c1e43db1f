// Package obs provides the search substrate's lightweight debug logging:
// component-tagged messages gated by an environment variable, writing to a
// configurable sink. It carries no structured-logging dependency because
// none of the retrieved stack reaches for one.
package obs

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
)

// SetOutput redirects debug output. Passing nil disables it entirely.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// IsEnabled reports whether REFLEXCORE_DEBUG requests verbose logging.
func IsEnabled() bool {
	v := os.Getenv("REFLEXCORE_DEBUG")
	return v == "1" || v == "true"
}

// Log emits a component-tagged debug line when enabled.
func Log(component, format string, args ...interface{}) {
	if !IsEnabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format+"\n", append([]interface{}{component}, args...)...)
}

// LogIndex logs an indexer (C7) decision: batch flush thresholds, reuse
// vs. reparse, lock acquisition.
func LogIndex(format string, args ...interface{}) { Log("INDEX", format, args...) }

// LogQuery logs a query-engine (C8) decision: full-scan fallback, literal
// extraction result, timeout.
func LogQuery(format string, args ...interface{}) { Log("QUERY", format, args...) }

// LogStore logs a metadata/symbol-cache (C5/C6) decision: checkpoint,
// cleanup_stale, cross-branch reuse.
func LogStore(format string, args ...interface{}) { Log("STORE", format, args...) }

// LogError records a §7 error kind regardless of the debug gate — failures
// are always worth a trace, not just when debugging is on.
func LogError(component string, err error) {
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[ERROR:%s] %v\n", component, err)
}
