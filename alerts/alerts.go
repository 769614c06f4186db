package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/freightkit/bus"
	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/logging"
	"github.com/vinayprograms/freightkit/telemetry"
)

// maxLine bounds each rendered line so alerts stay forwardable as short
// messages.
const maxLine = 160

// Alert is a critical event reduced to a code and a one-line summary, with
// an optional second line of detail.
type Alert struct {
	ID      string           `json:"id"`
	Code    errors.ErrorCode `json:"code"`
	Account string           `json:"account,omitempty"`
	TaskID  string           `json:"task_id,omitempty"`
	Summary string           `json:"summary"`
	Detail  string           `json:"detail,omitempty"`
	Time    time.Time        `json:"time"`

	// Trace carries W3C trace context so a forwarder can link the alert
	// to the execution span that raised it.
	Trace map[string]string `json:"trace,omitempty"`
}

// FromError builds an alert from err. The code comes from the error chain,
// falling back to INTERNAL.
func FromError(account, taskID string, err error, detail string) *Alert {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return &Alert{
		ID:      uuid.NewString(),
		Code:    code,
		Account: account,
		TaskID:  taskID,
		Summary: errors.Summary(err),
		Detail:  detail,
		Time:    time.Now(),
	}
}

// String renders the alert in at most two lines.
func (a *Alert) String() string {
	var b strings.Builder
	if a.Account != "" {
		fmt.Fprintf(&b, "[%s] ", a.Account)
	}
	b.WriteString(a.Summary)
	first := clip(b.String())

	detail := a.Detail
	if i := strings.IndexByte(detail, '\n'); i >= 0 {
		detail = detail[:i]
	}
	if detail == "" {
		return first
	}
	return first + "\n" + clip(detail)
}

func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLine {
		return s
	}
	return s[:maxLine-3] + "..."
}

// Marshal encodes the alert as JSON.
func (a *Alert) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Unmarshal decodes an alert from JSON.
func Unmarshal(data []byte) (*Alert, error) {
	var a Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Reporter delivers alerts.
type Reporter interface {
	Report(ctx context.Context, a *Alert) error
}

// Subject returns the bus subject for an account's alerts.
func Subject(prefix, account string) string {
	if prefix == "" {
		prefix = "alerts"
	}
	return prefix + "." + bus.Token(account)
}

// BusReporter publishes alerts on "<prefix>.<account>".
type BusReporter struct {
	bus    bus.MessageBus
	prefix string
}

// NewBusReporter creates a reporter on b. An empty prefix means "alerts".
func NewBusReporter(b bus.MessageBus, prefix string) *BusReporter {
	return &BusReporter{bus: b, prefix: prefix}
}

// Report implements Reporter.
func (r *BusReporter) Report(ctx context.Context, a *Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.Trace == nil {
		carrier := telemetry.MapCarrier{}
		telemetry.InjectContext(ctx, carrier)
		if len(carrier) > 0 {
			a.Trace = carrier
		}
	}
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	return r.bus.Publish(Subject(r.prefix, a.Account), data)
}

// MemoryReporter keeps alerts in memory.
type MemoryReporter struct {
	mu     sync.Mutex
	alerts []*Alert
}

// NewMemoryReporter creates an empty reporter.
func NewMemoryReporter() *MemoryReporter {
	return &MemoryReporter{}
}

// Report implements Reporter.
func (r *MemoryReporter) Report(_ context.Context, a *Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
	return nil
}

// Alerts returns the alerts received so far.
func (r *MemoryReporter) Alerts() []*Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// LogReporter writes alerts to a logger at ERROR level.
type LogReporter struct {
	logger *logging.Logger
}

// NewLogReporter creates a reporter on logger.
func NewLogReporter(logger *logging.Logger) *LogReporter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogReporter{logger: logger.WithComponent("alerts")}
}

// Report implements Reporter.
func (r *LogReporter) Report(_ context.Context, a *Alert) error {
	fields := map[string]interface{}{
		"id":      a.ID,
		"code":    string(a.Code),
		"summary": a.Summary,
	}
	if a.TaskID != "" {
		fields["task_id"] = a.TaskID
	}
	if a.Detail != "" {
		fields["detail"] = a.Detail
	}
	r.logger.WithAccount(a.Account).Error("alert", fields)
	return nil
}

// Multi fans an alert out to several reporters. Every reporter is tried;
// the failures are joined.
func Multi(reporters ...Reporter) Reporter {
	return multi(reporters)
}

type multi []Reporter

func (m multi) Report(ctx context.Context, a *Alert) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
