package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "piiguard/pkg/platform/audit"
	auditmemory "piiguard/pkg/platform/audit/store/memory"
	"piiguard/pkg/platform/circuit"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type downSink struct{}

func (downSink) Append(context.Context, audit.Event) error {
	return errors.New("broker unreachable")
}

func TestAuditPublisherFallsBackToLogWhenSinkTrips(t *testing.T) {
	out := &lockedBuffer{}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := auditmemory.NewInMemoryStore()
	pub := newAuditPublisher(store, logger, map[string]audit.Sink{"kafka": downSink{}})

	for range 6 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			SessionID: "sess-fallback",
			Action:    string(audit.EventEntryStored),
			Success:   true,
		}))
	}
	pub.Close()

	state, ok := pub.SinkState("kafka")
	require.True(t, ok)
	assert.Equal(t, circuit.StateOpen, state)

	var fallbackLines int
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, `"sink":"fallback"`) && strings.Contains(line, `"level":"WARN"`) {
			fallbackLines++
		}
	}
	assert.Equal(t, 2, fallbackLines)

	events, err := store.ListBySession(context.Background(), "sess-fallback")
	require.NoError(t, err)
	assert.Len(t, events, 6)
}
