// internal/syncer/syncer.go
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	conf "github.com/bartek5186/xls2jobs/internal/config"
	"github.com/bartek5186/xls2jobs/internal/integrations"
	_ "github.com/bartek5186/xls2jobs/internal/integrations/excelwatch" // rejestracja
	"github.com/bartek5186/xls2jobs/internal/pipeline"
)

// Runner – przebieg synchronizacji (pipeline.Runner)
type Runner interface {
	integrations.Trigger
	Run(ctx context.Context, trigger string) (*pipeline.Report, error)
}

// wrapper na uruchomioną integrację (np. excel_watch)
type runningInt struct {
	Name string
	Inst integrations.Integration
}

// Status – migawka stanu dla CLI / traya
type Status struct {
	Running      bool
	Ticks        uint64
	Integrations []string
	LastReport   *pipeline.Report
	LastError    error
	LastRunAt    time.Time
}

type Syncer struct {
	log     zerolog.Logger // logowanie
	runner  Runner         // właściwa synchronizacja
	mu      sync.Mutex     // ochrona sekcji krytycznych
	cfg     *conf.Config   // aktualna konfiguracja
	running bool           // czy syncer działa
	cancel  context.CancelFunc
	wg      sync.WaitGroup // śledzi goroutines
	ticks   uint64         // licznik przebiegów z timera
	ints    []runningInt   // lista aktywnych integracji

	lastReport *pipeline.Report
	lastErr    error
	lastRunAt  time.Time
}

func New(log zerolog.Logger, cfg *conf.Config, runner Runner) *Syncer {
	return &Syncer{log: log, cfg: cfg, runner: runner}
}

func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.ticks = 0
	s.wg.Add(1)

	// zbuduj i odpal integracje
	ints := s.buildIntegrationsLocked()
	s.ints = ints
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.interval()).Msg("Syncer: start")
	go s.loop(ctx)

	// każda integracja w swojej gorutinie
	for i := range ints {
		s.wg.Add(1)
		go func(intg integrations.Integration) {
			defer s.wg.Done()
			if err := intg.Start(ctx); err != nil {
				s.log.Error().Err(err).Str("integration", intg.Name()).Msg("zakończona z błędem")
			}
		}(ints[i].Inst)
	}
	return nil
}

func (s *Syncer) buildIntegrationsLocked() []runningInt {
	var out []runningInt
	if s.cfg == nil || len(s.cfg.Integrations) == 0 {
		s.log.Info().Msg("Integrations: brak – tylko timer")
		return out
	}

	// stała kolejność startu
	names := make([]string, 0, len(s.cfg.Integrations))
	for name := range s.cfg.Integrations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := s.cfg.Integrations[name]
		f, ok := integrations.Get(name)
		if !ok {
			s.log.Warn().Str("integration", name).Strs("known", integrations.Names()).Msg("brak fabryki – pomijam")
			continue
		}
		inst, err := f(s.log.With().Str("integration", name).Logger(), json.RawMessage(raw), integrations.Deps{Runner: s.runner})
		if err != nil {
			s.log.Error().Err(err).Str("integration", name).Msg("błąd inicjalizacji")
			continue
		}
		out = append(out, runningInt{Name: name, Inst: inst})
	}
	s.log.Info().Int("started", len(out)).Msg("Integrations built")
	return out
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	ints := s.ints
	s.ints = nil
	s.cancel = nil
	s.mu.Unlock()

	for _, ri := range ints {
		ri.Inst.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("Syncer: stop")
}

func (s *Syncer) UpdateConfig(ctx context.Context, cfg *conf.Config) {
	s.mu.Lock()
	s.cfg = cfg
	isRunning := s.running
	s.mu.Unlock()

	s.log.Info().Msg("Syncer: config zaktualizowany")

	if isRunning {
		// szybki restart integracji, żeby wzięły nową konfigurację
		s.log.Info().Msg("Syncer: restart integracji po zmianie configu")
		s.Stop()
		_ = s.Start(ctx)
	}
}

func (s *Syncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:    s.running,
		Ticks:      s.ticks,
		LastReport: s.lastReport,
		LastError:  s.lastErr,
		LastRunAt:  s.lastRunAt,
	}
	for _, ri := range s.ints {
		st.Integrations = append(st.Integrations, ri.Name)
	}
	return st
}

// SyncNow – ręczne wyzwolenie (tray / konsola). Nie czeka w kolejce: przy
// trwającym przebiegu zwraca pipeline.ErrBusy.
func (s *Syncer) SyncNow(ctx context.Context) (*pipeline.Report, error) {
	rep, err := s.runner.Run(ctx, pipeline.TriggerManual)
	s.record(rep, err)
	return rep, err
}

func (s *Syncer) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		return s.cfg.Interval()
	}
	return 120 * time.Second
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()

	// pierwszy strzał od razu
	s.tickOnce(ctx)

	cur := s.interval()
	ticker := time.NewTicker(cur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Syncer: koniec pętli")
			return
		case <-ticker.C:
			// jeśli ktoś zmienił interwał w cfg — odśwież ticker
			if next := s.interval(); next != cur {
				cur = next
				ticker.Reset(cur)
			}
			s.tickOnce(ctx)
		}
	}
}

func (s *Syncer) tickOnce(ctx context.Context) {
	s.mu.Lock()
	s.ticks++
	n := s.ticks
	s.mu.Unlock()

	rep, err := s.runner.Run(ctx, pipeline.TriggerTimer)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		s.log.Debug().Uint64("tick", n).Msg("Syncer: poprzedni przebieg trwa — pomijam")
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		s.log.Error().Err(err).Uint64("tick", n).Msg("Syncer: przebieg nieudany")
	}
	s.record(rep, err)
}

func (s *Syncer) record(rep *pipeline.Report, err error) {
	if errors.Is(err, pipeline.ErrBusy) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = time.Now()
	s.lastErr = err
	if rep != nil {
		s.lastReport = rep
	}
}
