// internal/pkg/notify/notify.go
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier is the user-facing notification sink. The cart core emits
// success/error/info messages through it without knowing how they reach the
// shopper.
type Notifier interface {
	Success(message string)
	Error(message string)
	Info(message string, duration time.Duration)
}

// LogNotifier routes notifications into the structured log. It is the
// default sink for headless contexts.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Success(message string) {
	n.logger.WithField("kind", "success").Info(message)
}

func (n *LogNotifier) Error(message string) {
	n.logger.WithField("kind", "error").Warn(message)
}

func (n *LogNotifier) Info(message string, duration time.Duration) {
	n.logger.WithFields(logrus.Fields{
		"kind":     "info",
		"duration": duration,
	}).Info(message)
}

// Multi fans one notification out to several sinks, e.g. a per-session
// collector plus the structured log.
type Multi []Notifier

func (m Multi) Success(message string) {
	for _, n := range m {
		n.Success(message)
	}
}

func (m Multi) Error(message string) {
	for _, n := range m {
		n.Error(message)
	}
}

func (m Multi) Info(message string, duration time.Duration) {
	for _, n := range m {
		n.Info(message, duration)
	}
}

// Notice is one captured notification.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Collector buffers notifications so the HTTP layer can return them to the
// client alongside the response. Also used to assert on notices in tests.
type Collector struct {
	mu      sync.Mutex
	notices []Notice
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Success(message string) {
	c.append(Notice{Kind: "success", Message: message})
}

func (c *Collector) Error(message string) {
	c.append(Notice{Kind: "error", Message: message})
}

func (c *Collector) Info(message string, duration time.Duration) {
	c.append(Notice{Kind: "info", Message: message})
}

func (c *Collector) append(n Notice) {
	c.mu.Lock()
	c.notices = append(c.notices, n)
	c.mu.Unlock()
}

// Drain returns all captured notices and resets the buffer.
func (c *Collector) Drain() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	return out
}
