package syncer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/bartek5186/xls2jobs/internal/config"
	"github.com/bartek5186/xls2jobs/internal/pipeline"
)

type fakeRunner struct {
	mu       sync.Mutex
	path     string
	triggers []string
	busy     bool
}

func (f *fakeRunner) Path() string { return f.path }

func (f *fakeRunner) Run(ctx context.Context, trigger string) (*pipeline.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return nil, pipeline.ErrBusy
	}
	f.triggers = append(f.triggers, trigger)
	return &pipeline.Report{Trigger: trigger, Saved: 3}, nil
}

func (f *fakeRunner) RunIfChanged(ctx context.Context, trigger string) (*pipeline.Report, error) {
	return f.Run(ctx, trigger)
}

func (f *fakeRunner) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...)
}

func timerOnly() *conf.Config {
	cfg := conf.Default()
	cfg.Integrations = nil
	cfg.SyncIntervalSeconds = 3600
	return cfg
}

func TestSyncer_StartRunsImmediatelyAndStops(t *testing.T) {
	fr := &fakeRunner{}
	s := New(zerolog.Nop(), timerOnly(), fr)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return len(fr.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{pipeline.TriggerTimer}, fr.seen())

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())

	st := s.Status()
	assert.EqualValues(t, 1, st.Ticks)
	require.NotNil(t, st.LastReport)
	assert.Equal(t, 3, st.LastReport.Saved)
	assert.NoError(t, st.LastError)
}

func TestSyncer_BuildsConfiguredIntegrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	cfg := timerOnly()
	cfg.Integrations = map[string]json.RawMessage{
		"excel_watch": json.RawMessage(`{"poll_sec":3600}`),
		"ftp_drop":    json.RawMessage(`{}`),
	}
	fr := &fakeRunner{path: path}
	s := New(zerolog.Nop(), cfg, fr)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, []string{"excel_watch"}, s.Status().Integrations)
	require.Eventually(t, func() bool { return len(fr.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{pipeline.TriggerTimer, pipeline.TriggerWatch}, fr.seen())
}

func TestSyncer_SyncNowBusy(t *testing.T) {
	fr := &fakeRunner{busy: true}
	s := New(zerolog.Nop(), timerOnly(), fr)

	_, err := s.SyncNow(context.Background())
	require.ErrorIs(t, err, pipeline.ErrBusy)
	assert.Nil(t, s.Status().LastReport)

	fr.mu.Lock()
	fr.busy = false
	fr.mu.Unlock()

	rep, err := s.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.TriggerManual, rep.Trigger)
	assert.Equal(t, rep, s.Status().LastReport)
}

func TestSyncer_UpdateConfigRestarts(t *testing.T) {
	fr := &fakeRunner{}
	s := New(zerolog.Nop(), timerOnly(), fr)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return len(fr.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)

	next := timerOnly()
	next.SyncIntervalSeconds = 7200
	s.UpdateConfig(context.Background(), next)
	assert.True(t, s.IsRunning())
	assert.Equal(t, 7200*time.Second, s.interval())

	// restart = nowy pierwszy strzał
	require.Eventually(t, func() bool { return len(fr.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
}
