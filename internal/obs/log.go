// Package obs carries the observability plumbing for aftervisit-api:
// Prometheus metrics, build information, and the JSON-line logger the rest
// of the service writes through.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	logOnce sync.Once
	logLine *log.Logger
)

// Logger returns the process-wide line logger. It writes to stdout with no
// prefix or flags so each call produces exactly one JSON document per line.
func Logger() *log.Logger {
	logOnce.Do(func() {
		logLine = log.New(os.Stdout, "", 0)
	})
	return logLine
}

// LogRequest serializes one request's fields as a JSON line. A marshal
// failure still emits a well-formed line so downstream log shippers never
// see a partial document.
func LogRequest(fields map[string]any) {
	line, err := json.Marshal(fields)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"request log entry could not be marshaled"}`)
		return
	}
	Logger().Println(string(line))
}
