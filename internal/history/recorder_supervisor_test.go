//go:build !windows

package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/runkeeper/internal/policy"
	"github.com/loykin/runkeeper/internal/process"
	"github.com/loykin/runkeeper/internal/supervisor"
)

// gatedSink blocks every Send until the gate opens.
type gatedSink struct {
	memSink
	gate chan struct{}
}

func (g *gatedSink) Send(ctx context.Context, e Event) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.memSink.Send(ctx, e)
}

func TestRecorderKeepsExitReasonOfEachTransition(t *testing.T) {
	dir := t.TempDir()
	launcher := filepath.Join(dir, process.DefaultScript)
	require.NoError(t, os.WriteFile(launcher, []byte("exit 3\n"), 0o644))

	sup := supervisor.New(supervisor.Config{Name: "svc", WorkDir: dir, StopTimeout: 2 * time.Second},
		supervisor.WithPolicy(policy.New(time.Minute, 5, 10*time.Second)))
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })

	sink := &gatedSink{gate: make(chan struct{})}
	rec := NewRecorder(nil, 30*time.Second, sink)
	loop := rec.Follow(sup)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop(context.Background())
	}()

	require.NoError(t, sup.Start())
	require.Eventually(t, func() bool {
		return sup.Snapshot().LastExit == "exit status 3"
	}, 3*time.Second, 10*time.Millisecond)

	// a later run ends with a different reason while the sink is still blocked
	require.NoError(t, os.WriteFile(launcher, []byte("sleep 5\n"), 0o644))
	require.NoError(t, sup.Start())
	require.NoError(t, sup.Stop())
	require.NotEqual(t, "exit status 3", sup.Snapshot().LastExit)

	close(sink.gate)
	require.NoError(t, sup.Shutdown(context.Background()))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not finish")
	}

	evs := sink.got()
	require.Len(t, evs, 4)
	assert.Equal(t, EventStart, evs[0].Type)
	assert.Equal(t, EventStop, evs[1].Type)
	assert.Equal(t, "exit status 3", evs[1].Record.LastExit)
	assert.Equal(t, EventStart, evs[2].Type)
	assert.Empty(t, evs[2].Record.LastExit)
	assert.Equal(t, EventStop, evs[3].Type)
	assert.NotEqual(t, "exit status 3", evs[3].Record.LastExit)
}
