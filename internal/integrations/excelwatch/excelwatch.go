// Package excelwatch odpala synchronizację, gdy zmieni się plik arkusza.
package excelwatch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartek5186/xls2jobs/internal/integrations"
	"github.com/bartek5186/xls2jobs/internal/pipeline"
)

const Name = "excel_watch"

type Config struct {
	PollSec int `json:"poll_sec"` // co ile sekund sprawdzać plik
}

type Watcher struct {
	log    zerolog.Logger
	cfg    Config
	runner integrations.Trigger

	mu     sync.Mutex
	cancel context.CancelFunc

	// ostatnio widziany stan pliku (tani test przed liczeniem SHA)
	lastMod  time.Time
	lastSize int64
}

func (w *Watcher) Name() string { return Name }

func (w *Watcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer cancel()
	w.log.Info().Str("integration", w.Name()).Str("path", w.runner.Path()).Msg("start")

	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()

	// pierwszy przebieg
	w.scanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Str("integration", w.Name()).Msg("stop")
			return nil
		case <-ticker.C:
			w.scanOnce(ctx)
		}
	}
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watcher) interval() time.Duration {
	if w.cfg.PollSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(w.cfg.PollSec) * time.Second
}

// scanOnce: stat pliku; przy zmianie mtime/rozmiaru -> RunIfChanged (porównanie SHA).
func (w *Watcher) scanOnce(ctx context.Context) {
	path := w.runner.Path()
	fi, err := os.Stat(path)
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("nie mogę odczytać pliku arkusza")
		return
	}
	if fi.ModTime().Equal(w.lastMod) && fi.Size() == w.lastSize {
		return
	}

	rep, err := w.runner.RunIfChanged(ctx, pipeline.TriggerWatch)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		// inny przebieg trwa – spróbujemy przy następnym ticku
		w.log.Debug().Msg("sync w toku — pomijam")
		return
	case err != nil:
		w.log.Error().Err(err).Str("path", path).Msg("synchronizacja po zmianie pliku nieudana")
		return
	}

	w.lastMod, w.lastSize = fi.ModTime(), fi.Size()
	if rep.Unchanged {
		w.log.Debug().Str("path", path).Msg("zmiana mtime, treść bez zmian")
	}
}

func factory(log zerolog.Logger, raw json.RawMessage, deps integrations.Deps) (integrations.Integration, error) {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}
	if deps.Runner == nil {
		return nil, errors.New("excel_watch: brak runnera")
	}
	return &Watcher{log: log, cfg: cfg, runner: deps.Runner}, nil
}

func init() {
	integrations.Register(Name, factory)
}
