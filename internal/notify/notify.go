// Package notify posts research completion notices to chat channels.
// Delivery is best effort: a failed notification is logged, never
// propagated into the completion path.
package notify

import (
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/researchdesk/internal/models"
)

// Event describes a finished research attempt.
type Event struct {
	Todo   models.Todo
	Result models.ResearchResult
}

// Notifier delivers a completion notice to one destination.
type Notifier interface {
	Notify(event Event) error
	Name() string
}

// Multi fans an event out to every configured notifier. Failures are
// logged per destination and do not stop the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify sends the event to all destinations. Always returns nil; this
// is the top of the best-effort boundary.
func (m *Multi) Notify(event Event) error {
	for _, n := range m.notifiers {
		if err := n.Notify(event); err != nil {
			log.Printf("notify: %s: %v", n.Name(), err)
		}
	}
	return nil
}

// Name implements Notifier.
func (m *Multi) Name() string { return "multi" }

// formatEvent renders the shared plain-text notice used by all
// destinations.
func formatEvent(event Event) string {
	var b strings.Builder
	switch event.Result.Status {
	case models.ResultCompleted:
		fmt.Fprintf(&b, "Research complete: %s\n", event.Todo.Title)
	case models.ResultTimeout:
		fmt.Fprintf(&b, "Research timed out: %s\n", event.Todo.Title)
	default:
		fmt.Fprintf(&b, "Research failed: %s\n", event.Todo.Title)
	}
	fmt.Fprintf(&b, "Service: %s | Duration: %ds", event.Result.Service, event.Result.DurationSeconds)
	if meta, err := event.Result.DecodeMetadata(); err == nil && meta != nil && len(meta.Sources) > 0 {
		fmt.Fprintf(&b, " | Sources: %d", len(meta.Sources))
	}
	return b.String()
}
