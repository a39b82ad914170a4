package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bartek5186/xls2jobs/internal/db"
	"github.com/bartek5186/xls2jobs/internal/extract"
	"github.com/bartek5186/xls2jobs/internal/metrics"
	"github.com/bartek5186/xls2jobs/internal/transport"
)

// ErrBusy – poprzedni przebieg w tym procesie jeszcze trwa.
var ErrBusy = errors.New("sync already running")

// Wyzwalacze przebiegu
const (
	TriggerTimer  = "timer"
	TriggerWatch  = "watch"
	TriggerManual = "manual"
	TriggerCLI    = "cli"
)

type Options struct {
	Path    string
	Extract extract.Options
}

type Report struct {
	RunID     string          `json:"runId"`
	ImportID  uint            `json:"importId,omitempty"`
	Trigger   string          `json:"trigger"`
	Mode      string          `json:"mode"`
	File      string          `json:"file"`
	Sheet     string          `json:"sheet"`
	SHA256    string          `json:"sha256"`
	Read      int             `json:"read"`
	Saved     int             `json:"saved"`
	Skipped   int             `json:"skipped"`
	Issues    []extract.Issue `json:"issues,omitempty"`
	Unchanged bool            `json:"unchanged,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Runner wykonuje pojedynczy przebieg: plik -> ekstrakcja -> sink -> ewidencja.
// Przebiegi nie nakładają się w obrębie procesu (flaga busy).
type Runner struct {
	log zerolog.Logger
	db  *gorm.DB // ewidencja import_files / row_issues

	mu   sync.Mutex
	opts Options
	sink transport.Sink

	busy atomic.Bool
	now  func() time.Time
}

func New(log zerolog.Logger, gdb *gorm.DB, sink transport.Sink, opts Options) *Runner {
	return &Runner{log: log, db: gdb, sink: sink, opts: opts, now: time.Now}
}

// Update podmienia ustawienia i sink (np. po przeładowaniu configu).
func (r *Runner) Update(opts Options, sink transport.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = opts
	if sink != nil {
		r.sink = sink
	}
}

func (r *Runner) snapshot() (Options, transport.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts, r.sink
}

func (r *Runner) Busy() bool { return r.busy.Load() }

// Path – rozwinięta ścieżka obserwowanego pliku.
func (r *Runner) Path() string {
	opts, _ := r.snapshot()
	return expandHome(opts.Path)
}

// Run wykonuje pełny przebieg niezależnie od tego, czy plik się zmienił.
func (r *Runner) Run(ctx context.Context, trigger string) (*Report, error) {
	return r.run(ctx, trigger, false)
}

// RunIfChanged pomija przebieg, gdy SHA-256 pliku równa się ostatniemu udanemu importowi.
func (r *Runner) RunIfChanged(ctx context.Context, trigger string) (*Report, error) {
	return r.run(ctx, trigger, true)
}

func (r *Runner) run(ctx context.Context, trigger string, onlyChanged bool) (*Report, error) {
	if !r.busy.CompareAndSwap(false, true) {
		metrics.SyncRuns.WithLabelValues(trigger, "busy").Inc()
		return nil, ErrBusy
	}
	defer r.busy.Store(false)

	opts, sink := r.snapshot()
	start := r.now()
	rep := &Report{
		RunID:   uuid.NewString(),
		Trigger: trigger,
		Mode:    sink.Name(),
		File:    filepath.Base(opts.Path),
	}
	log := r.log.With().Str("run_id", rep.RunID).Str("trigger", trigger).Str("file", rep.File).Logger()

	path := expandHome(opts.Path)
	fi, err := os.Stat(path)
	if err != nil {
		metrics.SyncRuns.WithLabelValues(trigger, "error").Inc()
		return nil, fmt.Errorf("plik arkusza: %w", err)
	}
	sum, err := fileSHA256(path)
	if err != nil {
		metrics.SyncRuns.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}
	rep.SHA256 = sum

	if onlyChanged {
		last, err := r.lastDone(ctx, rep.File, rep.Mode)
		if err != nil {
			return nil, err
		}
		if last != nil && last.SHA256 == sum {
			rep.Unchanged = true
			rep.ImportID = last.ImportID
			metrics.SyncRuns.WithLabelValues(trigger, "unchanged").Inc()
			log.Debug().Uint("import_id", last.ImportID).Msg("plik bez zmian — pomijam")
			return rep, nil
		}
	}

	rec := db.ImportFile{
		RunID:     rep.RunID,
		Filename:  rep.File,
		SHA256:    sum,
		SizeBytes: fi.Size(),
		Trigger:   trigger,
		Mode:      rep.Mode,
		Status:    db.ImportPending,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("rejestracja importu: %w", err)
	}
	rep.ImportID = rec.ImportID

	err = r.process(ctx, path, opts, sink, rep)
	rep.Duration = r.now().Sub(start)
	metrics.SyncDuration.WithLabelValues(rep.Mode).Observe(rep.Duration.Seconds())

	if err != nil {
		metrics.SyncRuns.WithLabelValues(trigger, "error").Inc()
		log.Error().Err(err).Uint("import_id", rec.ImportID).Msg("błąd synchronizacji")
		r.finish(rec.ImportID, rep, err)
		return rep, err
	}

	metrics.SyncRuns.WithLabelValues(trigger, "ok").Inc()
	metrics.SyncRows.WithLabelValues("saved").Add(float64(rep.Saved))
	metrics.SyncRows.WithLabelValues("skipped").Add(float64(rep.Skipped))
	r.finish(rec.ImportID, rep, nil)

	log.Info().
		Uint("import_id", rec.ImportID).
		Str("sheet", rep.Sheet).
		Str("mode", rep.Mode).
		Int("read", rep.Read).
		Int("saved", rep.Saved).
		Int("skipped", rep.Skipped).
		Dur("took", rep.Duration).
		Msg("synchronizacja OK")
	return rep, nil
}

func (r *Runner) process(ctx context.Context, path string, opts Options, sink transport.Sink, rep *Report) error {
	res, err := extract.ReadFile(path, opts.Extract)
	if err != nil {
		return err
	}
	rep.Sheet = res.SheetName
	rep.Read = res.Read
	rep.Skipped = res.Skipped
	rep.Issues = res.Issues

	if len(res.Issues) > 0 {
		r.log.Warn().Str("file", res.FileName).Int("issues", len(res.Issues)).Msg("pominięto wiersze bez wymaganych pól")
	}
	if err := r.saveIssues(ctx, rep.ImportID, res.Issues); err != nil {
		return err
	}
	if len(res.Rows) == 0 {
		return nil
	}

	out, err := sink.Send(ctx, res.Rows)
	rep.Saved = out.Saved
	return err
}

func (r *Runner) saveIssues(ctx context.Context, importID uint, issues []extract.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	rows := make([]db.RowIssue, 0, len(issues))
	for _, is := range issues {
		rows = append(rows, db.RowIssue{ImportID: importID, RowRef: is.RowRef, Field: is.Field, Message: is.Message})
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, 200).Error; err != nil {
		return fmt.Errorf("zapis row_issues: %w", err)
	}
	return nil
}

// finish aktualizuje import_files; osobny kontekst, żeby anulowany run też się odnotował.
func (r *Runner) finish(importID uint, rep *Report, runErr error) {
	now := r.now()
	upd := map[string]any{
		"sheet_name":   rep.Sheet,
		"rows_read":    rep.Read,
		"rows_saved":   rep.Saved,
		"rows_skipped": rep.Skipped,
		"processed_at": now,
		"status":       db.ImportDone,
		"last_error":   "",
	}
	if runErr != nil {
		upd["status"] = db.ImportError
		upd["last_error"] = runErr.Error()
	}
	if err := r.db.Model(&db.ImportFile{}).Where("import_id = ?", importID).Updates(upd).Error; err != nil {
		r.log.Error().Err(err).Uint("import_id", importID).Msg("aktualizacja import_files nieudana")
	}
}

// lastDone – ostatni udany import pliku tym samym transportem; po zmianie
// trybu (direct <-> remote) plik trzeba wysłać ponownie.
func (r *Runner) lastDone(ctx context.Context, file, mode string) (*db.ImportFile, error) {
	var rec db.ImportFile
	err := r.db.WithContext(ctx).
		Where("filename = ? AND mode = ? AND status = ?", file, mode, db.ImportDone).
		Order("import_id DESC").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LastImport zwraca ostatni zarejestrowany przebieg (dowolny status).
func (r *Runner) LastImport(ctx context.Context) (*db.ImportFile, error) {
	var rec db.ImportFile
	err := r.db.WithContext(ctx).Order("import_id DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Issues zwraca odrzucone wiersze danego importu.
func (r *Runner) Issues(ctx context.Context, importID uint) ([]db.RowIssue, error) {
	var out []db.RowIssue
	err := r.db.WithContext(ctx).Where("import_id = ?", importID).Order("id").Find(&out).Error
	return out, err
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
