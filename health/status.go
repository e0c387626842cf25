package health

import (
	"regexp"
	"time"
)

// Status is a health level. Ordering matters: higher values are worse,
// except Unknown which sits outside the fold.
type Status int

const (
	Unknown Status = iota
	Healthy
	Degraded
	Unhealthy
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so reports serialize
// with readable levels.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// worse returns the more severe of two statuses. Unknown never wins
// against a known status.
func worse(a, b Status) Status {
	if a == Unknown {
		return b
	}
	if b == Unknown {
		return a
	}
	if b > a {
		return b
	}
	return a
}

// Report is one component's health at a point in time. Latency is how
// long the probe took and is filled in by the aggregator.
type Report struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// OK builds a healthy report.
func OK(message string) Report {
	return Report{Status: Healthy, Message: message, CheckedAt: time.Now()}
}

// Degrade builds a degraded report.
func Degrade(message string) Report {
	return Report{Status: Degraded, Message: message, CheckedAt: time.Now()}
}

// Down builds an unhealthy report. The message is sanitized before it
// is stored so endpoints and credentials never leak through health
// output.
func Down(message string) Report {
	return Report{Status: Unhealthy, Message: sanitizeMessage(message), CheckedAt: time.Now()}
}

// Summary is the folded view over a set of component reports.
type Summary struct {
	Status  Status            `json:"status"`
	Reports map[string]Report `json:"reports"`
}

// Fold reduces component reports to a system status using worst-wins
// semantics. An empty set is Unknown.
func Fold(reports map[string]Report) Summary {
	status := Unknown
	for _, r := range reports {
		status = worse(status, r.Status)
	}
	return Summary{Status: status, Reports: reports}
}

// Messages that reach operators must not echo connection strings or
// secrets verbatim.
var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://\S+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{2,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)\s*[:=]\s*\S+`)
)

func sanitizeMessage(msg string) string {
	msg = credentialRegex.ReplaceAllString(msg, "$1=[REDACTED]")
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[ADDR]")
	return msg
}
