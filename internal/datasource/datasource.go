// Package datasource picks which provider feeds a snapshot: the JSONL
// file cache or the live telemetry store. The choice is made once per
// refresh at the consumption boundary, never inside the providers.
package datasource

import (
	"context"
	"os"
	"time"

	"github.com/janekbaraniewski/claudeusage/internal/telemetry"
	"github.com/janekbaraniewski/claudeusage/internal/usage"
)

// Kind names a snapshot provider.
type Kind string

const (
	KindFiles     Kind = "jsonl"
	KindTelemetry Kind = "telemetry"
)

// EnvTelemetryEnabled switches the active source to the telemetry store.
const EnvTelemetryEnabled = "CLAUDE_CODE_ENABLE_TELEMETRY"

// Provider produces a complete usage snapshot.
type Provider interface {
	Snapshot(ctx context.Context) (usage.Snapshot, error)
}

// ActiveKind resolves the source for the current cycle from the
// environment.
func ActiveKind() Kind {
	switch os.Getenv(EnvTelemetryEnabled) {
	case "1", "true":
		return KindTelemetry
	}
	return KindFiles
}

// FileSource adapts the incremental cache to the Provider interface.
type FileSource struct {
	Cache *usage.Cache
}

func (f FileSource) Snapshot(ctx context.Context) (usage.Snapshot, error) {
	snap, err := f.Cache.IncrementalLoad()
	if err != nil {
		return usage.Snapshot{}, err
	}
	snap.DataSource = string(KindFiles)
	return snap, nil
}

// TelemetrySource adapts the telemetry read model to the Provider
// interface.
type TelemetrySource struct {
	Reader *telemetry.Reader
}

func (t TelemetrySource) Snapshot(ctx context.Context) (usage.Snapshot, error) {
	snap, err := t.Reader.Snapshot(ctx, time.Time{}, time.Time{})
	if err != nil {
		return usage.Snapshot{}, err
	}
	snap.DataSource = string(KindTelemetry)
	return snap, nil
}

// Selector owns both providers and answers snapshot requests with
// whichever source is active right now. The telemetry provider is
// optional; without it file mode is forced.
type Selector struct {
	Files     Provider
	Telemetry Provider
}

// Snapshot resolves the active kind once and delegates.
func (s Selector) Snapshot(ctx context.Context) (usage.Snapshot, error) {
	if ActiveKind() == KindTelemetry && s.Telemetry != nil {
		return s.Telemetry.Snapshot(ctx)
	}
	return s.Files.Snapshot(ctx)
}
