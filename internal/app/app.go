// Package app skleja config, logi, bazę, pipeline i syncer dla CLI i traya.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	conf "github.com/bartek5186/xls2jobs/internal/config"
	"github.com/bartek5186/xls2jobs/internal/db"
	"github.com/bartek5186/xls2jobs/internal/extract"
	"github.com/bartek5186/xls2jobs/internal/jobs"
	"github.com/bartek5186/xls2jobs/internal/logs"
	"github.com/bartek5186/xls2jobs/internal/pipeline"
	"github.com/bartek5186/xls2jobs/internal/syncer"
	"github.com/bartek5186/xls2jobs/internal/transport"
)

const Name = "xls2jobs"

type App struct {
	Dir     string
	CfgPath string
	LogPath string
	Log     zerolog.Logger
	Cfg     *conf.Config

	DB     *db.Handle
	Store  *jobs.Store
	Runner *pipeline.Runner
	Syncer *syncer.Syncer

	logFile io.Closer
}

// Options – ustawienia startowe z flag CLI / traya
type Options struct {
	Dir         string // katalog danych; puste -> os.UserConfigDir()/xls2jobs
	CfgPath     string // puste -> <Dir>/config.json
	LogLevel    string // nadpisuje log_level z configu
	WithConsole bool
}

// DataDir zwraca (i tworzy) katalog danych aplikacji.
func DataDir(name string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(base, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", err
	}
	return p, nil
}

// Bootstrap wczytuje config, otwiera i migruje bazę, buduje sink, runner i syncer.
func Bootstrap(opt Options) (_ *App, err error) {
	dir := opt.Dir
	if dir == "" {
		d, err := DataDir(Name)
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	cfgPath := opt.CfgPath
	if cfgPath == "" {
		cfgPath = filepath.Join(dir, "config.json")
	}

	cfg, firstRun, err := conf.LoadOrCreate(cfgPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if opt.LogLevel != "" {
		level = opt.LogLevel
	}
	logPath := filepath.Join(dir, "app.log")
	log, logFile := logs.New(logPath, opt.WithConsole, level)
	defer func() {
		if err != nil {
			_ = logFile.Close()
		}
	}()
	if firstRun {
		log.Info().Str("path", cfgPath).Msg("Utworzono domyślną konfigurację")
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	dbh, err := db.OpenFor(dir, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err = dbh.Migrate(); err != nil {
		_ = dbh.Close()
		return nil, fmt.Errorf("migracja: %w", err)
	}
	dbh.LogEvent(log.Info()).Msg("DB ready")

	store := jobs.NewStore(dbh.DB)
	sink, err := BuildSink(log, cfg, store)
	if err != nil {
		_ = dbh.Close()
		return nil, err
	}
	runner := pipeline.New(log, dbh.DB, sink, RunOptions(cfg))

	return &App{
		Dir:     dir,
		CfgPath: cfgPath,
		LogPath: logPath,
		Log:     log,
		Cfg:     cfg,
		DB:      dbh,
		Store:   store,
		Runner:  runner,
		Syncer:  syncer.New(log, cfg, runner),
		logFile: logFile,
	}, nil
}

// BuildSink wybiera transport wg sync.mode.
func BuildSink(log zerolog.Logger, cfg *conf.Config, store *jobs.Store) (transport.Sink, error) {
	switch strings.ToLower(cfg.Sync.Mode) {
	case conf.ModeRemote:
		return transport.NewRemote(log, transport.RemoteConfig{
			URL:     cfg.Sync.RemoteURL,
			Token:   cfg.Sync.Secret,
			Timeout: cfg.Timeout(),
			Retries: cfg.Sync.Retries,
		})
	case conf.ModeDirect, "":
		return transport.NewDirect(store), nil
	default:
		return nil, fmt.Errorf("nieznany sync.mode %q", cfg.Sync.Mode)
	}
}

// RunOptions przepisuje sekcję excel configu na ustawienia przebiegu.
func RunOptions(cfg *conf.Config) pipeline.Options {
	return pipeline.Options{
		Path: cfg.Excel.Path,
		Extract: extract.Options{
			Sheet:     cfg.Excel.Sheet,
			HeaderRow: cfg.Excel.HeaderRow,
			Charset:   cfg.Excel.Charset,
			Aliases:   cfg.Excel.Aliases,
		},
	}
}

// Reload czyta config od nowa i podmienia go w runnerze i syncerze.
// Zmiana bazy danych wymaga restartu procesu.
func (a *App) Reload(ctx context.Context) error {
	cfg, _, err := conf.LoadOrCreate(a.CfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Database != a.Cfg.Database {
		a.Log.Warn().Msg("Zmiana ustawień bazy zadziała dopiero po restarcie")
	}
	sink, err := BuildSink(a.Log, cfg, a.Store)
	if err != nil {
		return err
	}
	a.Runner.Update(RunOptions(cfg), sink)
	a.Syncer.UpdateConfig(ctx, cfg)
	a.Cfg = cfg
	a.Log.Info().Str("mode", cfg.Sync.Mode).Str("file", cfg.Excel.Path).Msg("Konfiguracja przeładowana")
	return nil
}

// ServesEndpoint: ta maszyna przyjmuje POST /api/sync/jobs (tryb direct + sekret).
func (a *App) ServesEndpoint() bool {
	return a.Cfg.Sync.Secret != "" && strings.EqualFold(strings.TrimSpace(a.Cfg.Sync.Mode), conf.ModeDirect)
}

func (a *App) Close() {
	a.Syncer.Stop()
	if err := a.DB.Close(); err != nil {
		a.Log.Warn().Err(err).Msg("DB close")
	}
	// plik logów na końcu, żeby zamknięcie bazy jeszcze się zalogowało
	_ = a.logFile.Close()
}
