package source

import (
	"context"
	"fmt"
	"time"

	"github.com/watchhound/telewatch/internal/config"
	"github.com/watchhound/telewatch/internal/errors"
	"github.com/watchhound/telewatch/internal/logger"
	"github.com/watchhound/telewatch/internal/types"
)

// RSSCapBytesDefault disables the RSS threshold when a monitor doesn't
// configure one explicitly.
const RSSCapBytesDefault = 0

// Open constructs the Adapter and SourceDescriptor for one monitor
// config entry, failing fast per spec.md §4.1 ("if a source cannot be
// opened at startup, fail fast with a clear error").
func Open(ctx context.Context, m config.MonitorConfig) (Adapter, types.SourceDescriptor, error) {
	id := m.Name
	if id == "" {
		id = fmt.Sprintf("%s:%s", m.Type, monitorLocation(m))
	}

	desc := types.SourceDescriptor{
		ID:          id,
		Keywords:    m.Keywords,
		DisplayName: displayName(m, id),
	}

	switch m.Type {
	case "file":
		desc.Kind = types.SourceFile
		desc.Location = m.Path
		a, err := NewFile(id, m.Path, false)
		return a, desc, err
	case "pid":
		desc.Kind = types.SourcePID
		desc.Location = fmt.Sprintf("%d", m.PID)
		a, err := NewPID(id, m.PID, RSSCapBytesDefault)
		return a, desc, err
	case "journal":
		desc.Kind = types.SourceJournal
		desc.Location = m.Unit
		a, err := NewJournal(ctx, id, m.Unit)
		return a, desc, err
	default:
		return nil, desc, errors.Errorf(errors.KindConfiguration, "unknown monitor type %q", m.Type)
	}
}

func monitorLocation(m config.MonitorConfig) string {
	switch m.Type {
	case "file":
		return m.Path
	case "pid":
		return fmt.Sprintf("%d", m.PID)
	case "journal":
		return m.Unit
	default:
		return ""
	}
}

func displayName(m config.MonitorConfig, fallback string) string {
	if m.Name != "" {
		return m.Name
	}
	return fallback
}

// RunBackoff drives one adapter's Next loop, forwarding records onto
// out, applying keyword filtering (bypassed while bootstrapping is
// true, spec.md §4.1/§4.2), and retrying with exponential backoff if the
// source disappears (spec.md §4.1: "emit one warning event ... then
// retry with backoff (1s, 2s, 4s, ..., capped at 60s)").
func RunBackoff(ctx context.Context, a Adapter, desc types.SourceDescriptor, bootstrapping func() bool, out chan<- types.LogRecord, events chan<- types.Event, log logger.Logger) {
	backoff := BackoffInitial
	warned := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec, ok, err := a.Next(ctx)
		if err != nil {
			if !warned {
				emitStallEvent(events, desc, err)
				warned = true
			}
			if log != nil {
				log.WithField("source", desc.ID).Warn("source unavailable: " + err.Error())
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = BackoffInitial
		warned = false

		if !ok {
			continue
		}
		if !bootstrapping() && !desc.MatchesKeywords(rec.Raw) {
			continue
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return
		}
	}
}

func emitStallEvent(events chan<- types.Event, desc types.SourceDescriptor, err error) {
	ev := types.NewEvent(nil, types.SeverityWarning,
		fmt.Sprintf("source %s disappeared: %s", desc.DisplayName, err.Error()),
		types.ReasonStall, desc.ID)
	select {
	case events <- ev:
	default:
	}
}
