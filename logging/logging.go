// Package logging provides real-time console output for freightkit.
// Lines are human readable and stable: LEVEL TIMESTAMP [component] message
// followed by sorted key=value fields.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a config string such as "debug" into a Level.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Logger provides structured logging to stdout.
// Derived loggers share the parent's writer lock.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	account   string
	task      string
	traceID   string
	now       func() time.Time
}

// New creates a new Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
		now:      time.Now,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := New()
	l.output = io.Discard
	l.minLevel = LevelError
	return l
}

func (l *Logger) clone() *Logger {
	c := *l
	return &c
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := l.clone()
	c.component = component
	return c
}

// WithAccount returns a new logger tagging every line with the game account.
func (l *Logger) WithAccount(account string) *Logger {
	c := l.clone()
	c.account = account
	return c
}

// WithTask returns a new logger tagging every line with a task ID.
func (l *Logger) WithTask(taskID string) *Logger {
	c := l.clone()
	c.task = taskID
	return c
}

// WithTraceID returns a new logger with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	c := l.clone()
	c.traceID = traceID
	return c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	merged := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	if l.account != "" {
		merged["account"] = l.account
	}
	if l.task != "" {
		merged["task"] = l.task
	}
	if l.traceID != "" {
		merged["trace"] = l.traceID
	}

	timestamp := l.now().UTC().Format("2006-01-02T15:04:05.000Z")
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Event helpers ---

// PlanProposed logs a plan presented for review.
func (l *Logger) PlanProposed(planID, destination string, shipments int, vessels int64) {
	l.Info("plan_proposed", map[string]interface{}{
		"plan":        planID,
		"destination": destination,
		"shipments":   shipments,
		"vessels":     vessels,
	})
}

// PlanDecision logs the review verdict for a plan.
func (l *Logger) PlanDecision(planID, decision string) {
	l.Info("plan_decision", map[string]interface{}{
		"plan":     planID,
		"decision": decision,
	})
}

// ShipmentStart logs the executor picking up a shipment.
func (l *Logger) ShipmentStart(index int, source, destination string, vessels int64) {
	l.Info("shipment_start", map[string]interface{}{
		"index":       index,
		"source":      source,
		"destination": destination,
		"vessels":     vessels,
	})
}

// ShipmentDispatched logs a shipment accepted by the shipping service.
func (l *Logger) ShipmentDispatched(index int, source, destination string, vessels int64, duration time.Duration) {
	l.Info("shipment_dispatched", map[string]interface{}{
		"index":       index,
		"source":      source,
		"destination": destination,
		"vessels":     vessels,
		"duration":    duration.String(),
	})
}

// ShipmentRetry logs a transient failure that will be retried.
func (l *Logger) ShipmentRetry(index, attempt int, backoff time.Duration, err error) {
	l.Warn("shipment_retry", map[string]interface{}{
		"index":   index,
		"attempt": attempt,
		"backoff": backoff.String(),
		"error":   err.Error(),
	})
}

// ShipmentFailed logs a shipment that exhausted its budget or hit a
// permanent failure.
func (l *Logger) ShipmentFailed(index, attempts int, err error) {
	l.Error("shipment_failed", map[string]interface{}{
		"index":    index,
		"attempts": attempts,
		"error":    err.Error(),
	})
}

// WaitStart logs the beginning of a heartbeat-aware wait.
func (l *Logger) WaitStart(reason string, bound time.Duration) {
	l.Debug("wait_start", map[string]interface{}{
		"reason": reason,
		"bound":  bound.String(),
	})
}

// ExecutionComplete logs the terminal state of an execution run.
func (l *Logger) ExecutionComplete(planID, state string, completed, failed, notAttempted int, duration time.Duration) {
	fields := map[string]interface{}{
		"plan":          planID,
		"state":         state,
		"completed":     completed,
		"failed":        failed,
		"not_attempted": notAttempted,
		"duration":      duration.String(),
	}
	if failed > 0 {
		l.Error("execution_complete", fields)
		return
	}
	l.Info("execution_complete", fields)
}

// LockWait logs a task blocking on a named lock held by someone else.
func (l *Logger) LockWait(name, waiter, holder string) {
	l.Debug("lock_wait", map[string]interface{}{
		"lock":   name,
		"waiter": waiter,
		"holder": holder,
	})
}

// LockHeld warns that a named lock has outlived its hold threshold.
func (l *Logger) LockHeld(name, holder string, held time.Duration) {
	l.Warn("lock_held_long", map[string]interface{}{
		"lock":   name,
		"holder": holder,
		"held":   held.Round(time.Millisecond).String(),
	})
}

// StateChange logs a task health transition.
func (l *Logger) StateChange(taskID, from, to string) {
	l.Debug("state_change", map[string]interface{}{
		"task_id": taskID,
		"from":    from,
		"to":      to,
	})
}

// ShutdownAction logs what shutdown did to one task.
func (l *Logger) ShutdownAction(taskID, state, action string) {
	l.Info("shutdown_action", map[string]interface{}{
		"task_id": taskID,
		"state":   state,
		"action":  action,
	})
}
