// internal/config/config.go
package conf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ModeDirect = "direct" // zapis prosto do bazy (jedna transakcja)
	ModeRemote = "remote" // POST JSON na zdalny endpoint /api/sync/jobs
)

// Główny config aplikacji
type Config struct {
	AutoStart           bool                       `json:"auto_start"`
	SyncIntervalSeconds int                        `json:"sync_interval_seconds" env:"SYNC_INTERVAL_SECONDS"`
	LogLevel            string                     `json:"log_level" env:"LOG_LEVEL"`
	Database            DatabaseConfig             `json:"database"`
	Excel               ExcelConfig                `json:"excel"`
	Sync                SyncConfig                 `json:"sync"`
	Server              ServerConfig               `json:"server"`
	Integrations        map[string]json.RawMessage `json:"integrations"` // nazwa -> surowy JSON integracji
}

type DatabaseConfig struct {
	Driver string `json:"driver" env:"DB_DRIVER"` // sqlite | sqlite3 | mysql | postgres
	DSN    string `json:"dsn" env:"DATABASE_URL"` // puste + sqlite -> plik w katalogu aplikacji
}

type ExcelConfig struct {
	Path      string              `json:"path" env:"EXCEL_FILE_PATH"`
	Sheet     string              `json:"sheet,omitempty" env:"EXCEL_SHEET_NAME"` // puste -> pierwszy arkusz
	HeaderRow int                 `json:"header_row" env:"EXCEL_HEADER_ROW"`      // 1-based
	Charset   string              `json:"charset,omitempty" env:"EXCEL_CHARSET"`  // tylko dla .csv
	Aliases   map[string][]string `json:"aliases,omitempty"`                      // pole -> nagłówki (nadpisuje domyślne)
}

type SyncConfig struct {
	Mode           string `json:"mode" env:"SYNC_MODE"`
	Secret         string `json:"secret,omitempty" env:"SYNC_SECRET"`
	RemoteURL      string `json:"remote_url,omitempty" env:"SYNC_REMOTE_URL"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"SYNC_TIMEOUT_SECONDS"`
	Retries        int    `json:"retries" env:"SYNC_RETRIES"` // 0 = bez ponowień
}

type ServerConfig struct {
	Addr string `json:"addr" env:"HTTP_ADDR"`
}

// Config integracji excel_watch (używany do domyślnego JSON-a)
type WatchDefaults struct {
	PollSec int `json:"poll_sec"`
}

func Default() *Config {
	rawWatch, _ := json.Marshal(WatchDefaults{PollSec: 30})
	return &Config{
		AutoStart:           false,
		SyncIntervalSeconds: 120,
		LogLevel:            "info",
		Database:            DatabaseConfig{Driver: "sqlite"},
		Excel: ExcelConfig{
			Path:      "./jobs.xlsx",
			HeaderRow: 1,
		},
		Sync: SyncConfig{
			Mode:           ModeDirect,
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{Addr: ":8080"},
		Integrations: map[string]json.RawMessage{
			"excel_watch": rawWatch,
		},
	}
}

// LoadOrCreate czyta config z pliku (albo zapisuje domyślny przy pierwszym
// uruchomieniu) i nakłada na niego zmienne środowiskowe.
func LoadOrCreate(path string) (*Config, bool, error) {
	// upewnij się, że katalog istnieje
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("błąd zapisu domyślnego configa: %w", err)
			}
			if err := ApplyEnv(cfg); err != nil {
				return nil, false, err
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("błąd otwierania configa: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
	}
	if cfg.Integrations == nil {
		cfg.Integrations = map[string]json.RawMessage{}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, false, err
	}
	cfg.fillDefaults()
	return &cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// LoadDotEnv ładuje istniejące pliki .env (brakujące pomija). Zwraca ile wczytano.
func LoadDotEnv(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if st, err := os.Stat(f); err == nil && !st.IsDir() {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// ApplyEnv nadpisuje pola configa ustawionymi zmiennymi środowiskowymi.
// Nieustawione zmienne zostawiają wartość z pliku.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("błąd zmiennych środowiskowych: %w", err)
	}
	return nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.SyncIntervalSeconds <= 0 {
		c.SyncIntervalSeconds = d.SyncIntervalSeconds
	}
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Excel.HeaderRow <= 0 {
		c.Excel.HeaderRow = d.Excel.HeaderRow
	}
	if c.Sync.Mode == "" {
		c.Sync.Mode = d.Sync.Mode
	}
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = d.Sync.TimeoutSeconds
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
}

// Validate sprawdza spójność ustawień synchronizacji.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Sync.Mode) {
	case ModeDirect:
	case ModeRemote:
		if strings.TrimSpace(c.Sync.RemoteURL) == "" {
			errs = append(errs, errors.New("sync.remote_url jest wymagany w trybie remote"))
		}
		if strings.TrimSpace(c.Sync.Secret) == "" {
			errs = append(errs, errors.New("sync.secret jest wymagany w trybie remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("nieznany sync.mode %q (direct|remote)", c.Sync.Mode))
	}
	if c.SyncIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("sync_interval_seconds musi być > 0, jest %d", c.SyncIntervalSeconds))
	}
	if c.Sync.Retries < 0 {
		errs = append(errs, fmt.Errorf("sync.retries nie może być ujemne, jest %d", c.Sync.Retries))
	}
	return errors.Join(errs...)
}

func (c *Config) Interval() time.Duration {
	if c.SyncIntervalSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func (c *Config) Timeout() time.Duration {
	if c.Sync.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Sync.TimeoutSeconds) * time.Second
}

// Helper do odczytu konkretnej integracji do struktury docelowej
func (c *Config) UnmarshalIntegration(name string, v any) error {
	raw, ok := c.Integrations[name]
	if !ok {
		return fmt.Errorf("brak integracji %q w configu", name)
	}
	return json.Unmarshal(raw, v)
}
