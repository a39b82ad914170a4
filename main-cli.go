//go:build !windows || dev

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/bartek5186/xls2jobs/internal/app"
	conf "github.com/bartek5186/xls2jobs/internal/config"
	"github.com/bartek5186/xls2jobs/internal/extract"
	"github.com/bartek5186/xls2jobs/internal/jobs"
	"github.com/bartek5186/xls2jobs/internal/pipeline"
	"github.com/bartek5186/xls2jobs/internal/server"
)

var ver = "1.0.0"

func main() {
	if _, err := conf.LoadDotEnv(".env", ".env.local"); err != nil {
		fmt.Fprintln(os.Stderr, "błąd .env:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "błąd:", err)
		os.Exit(1)
	}
}

func rootCmd() *cli.Command {
	return &cli.Command{
		Name:    app.Name,
		Version: ver,
		Usage:   "Synchronizacja zleceń z arkusza Excel do bazy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "app-dir",
				Usage:   "Katalog danych (config, logi, sqlite)",
				Sources: cli.EnvVars("XLS2JOBS_DIR"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Ścieżka do config.json",
				Sources: cli.EnvVars("XLS2JOBS_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Poziom logów (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			runCmd(),
			watchCmd(),
			migrateCmd(),
			extractCmd(),
			jobsCmd(),
		},
	}
}

func bootstrap(cmd *cli.Command) (*app.App, error) {
	return app.Bootstrap(app.Options{
		Dir:         cmd.String("app-dir"),
		CfgPath:     cmd.String("config"),
		LogLevel:    cmd.String("log-level"),
		WithConsole: true,
	})
}

func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Endpoint POST /api/sync/jobs (+ opcjonalnie harmonogram)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Adres nasłuchu (domyślnie server.addr z configu)"},
			&cli.BoolFlag{Name: "with-sync", Usage: "Uruchom też harmonogram i obserwację pliku"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			addr := cmd.String("addr")
			if addr == "" {
				addr = a.Cfg.Server.Addr
			}
			if a.Cfg.Sync.Secret == "" {
				a.Log.Warn().Msg("sync.secret pusty — endpoint odrzuci każde żądanie")
			}
			if cmd.Bool("with-sync") || a.Cfg.AutoStart {
				if err := a.Syncer.Start(ctx); err != nil {
					return err
				}
			}
			srv := server.New(a.Log, a.Store, a.Cfg.Sync.Secret)
			return srv.Run(ctx, addr)
		}),
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Jednorazowy przebieg synchronizacji",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "if-changed", Usage: "Pomiń, jeśli plik nie zmienił się od ostatniego importu"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			var (
				rep *pipeline.Report
				err error
			)
			if cmd.Bool("if-changed") {
				rep, err = a.Runner.RunIfChanged(ctx, pipeline.TriggerCLI)
			} else {
				rep, err = a.Runner.Run(ctx, pipeline.TriggerCLI)
			}
			if rep != nil {
				_ = printJSON(rep)
			}
			return err
		}),
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Utwórz / zaktualizuj schemat bazy",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			// Bootstrap już migruje
			a.DB.LogEvent(a.Log.Info()).Msg("Schemat aktualny")
			return nil
		}),
	}
}

func extractCmd() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Podgląd wierszy z arkusza bez zapisu",
		ArgsUsage: "[plik]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := app.RunOptions(a.Cfg)
			path := a.Runner.Path()
			if cmd.Args().Present() {
				path = cmd.Args().First()
			}
			res, err := extract.ReadFile(path, opts.Extract)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

// --- jobs / managers / suppliers ---

func jobsCmd() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Zarządzanie zleceniami",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Lista zleceń",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Usage: "app | excel"},
					&cli.StringFlag{Name: "q", Usage: "Szukaj w numerze / nazwie budowy / kliencie"},
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					list, err := a.Store.ListJobs(ctx, jobs.ListFilter{
						Source: cmd.String("source"),
						Search: cmd.String("q"),
						Limit:  int(cmd.Int("limit")),
					})
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "JOB\tSITE\tCLIENT\tSOURCE\tROW")
					for _, j := range list {
						client := ""
						if j.Client != nil {
							client = *j.Client
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.JobNumber, j.SiteName, client, j.Source, j.ExcelRowRef)
					}
					return tw.Flush()
				}),
			},
			{
				Name:      "show",
				ArgsUsage: "<jobNumber>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					j, err := a.Store.GetJob(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					return printJSON(j)
				}),
			},
			{
				Name:      "create",
				Usage:     "Ręczne zlecenie (source=app)",
				ArgsUsage: "<jobNumber> <siteName> [client]",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					args := cmd.Args()
					if args.Len() < 2 {
						return errors.New("podaj numer zlecenia i nazwę budowy")
					}
					j, err := a.Store.CreateJob(ctx, args.Get(0), args.Get(1), args.Get(2))
					if err != nil {
						return err
					}
					return printJSON(j)
				}),
			},
			{
				Name:      "assign-manager",
				ArgsUsage: "<jobNumber> <managerId|none>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					id, err := refArg(cmd)
					if err != nil {
						return err
					}
					return a.Store.AssignManager(ctx, cmd.Args().First(), id)
				}),
			},
			{
				Name:      "assign-supplier",
				ArgsUsage: "<jobNumber> <supplierId|none>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					id, err := refArg(cmd)
					if err != nil {
						return err
					}
					return a.Store.AssignSupplier(ctx, cmd.Args().First(), id)
				}),
			},
			{
				Name:      "delete",
				ArgsUsage: "<jobNumber>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					return a.Store.DeleteJob(ctx, cmd.Args().First())
				}),
			},
			{
				Name:      "add-manager",
				ArgsUsage: "<name> [email]",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					m, err := a.Store.CreateManager(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
					if err != nil {
						return err
					}
					return printJSON(m)
				}),
			},
			{
				Name:      "add-supplier",
				ArgsUsage: "<name>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					s, err := a.Store.CreateSupplier(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					return printJSON(s)
				}),
			},
		},
	}
}

// drugi argument: id albo "none" (czyści przypisanie)
func refArg(cmd *cli.Command) (*uint, error) {
	if cmd.Args().Len() < 2 {
		return nil, errors.New("podaj numer zlecenia i id (albo none)")
	}
	raw := strings.ToLower(cmd.Args().Get(1))
	if raw == "none" || raw == "0" {
		return nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("niepoprawne id %q", raw)
	}
	id := uint(n)
	return &id, nil
}

// --- interaktywna konsola ---

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Harmonogram + obserwacja pliku z konsolą poleceń",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			s := a.Syncer
			if a.Cfg.AutoStart {
				if err := s.Start(ctx); err != nil {
					log.Error().Msgf("AutoStart nieudany: %v", err)
				} else {
					log.Info().Msgf("xls2jobs %s — działa", ver)
				}
			}

			fmt.Println("xls2jobs", ver)
			fmt.Println(helpLine)
			lines := make(chan string)
			go func() {
				reader := bufio.NewReader(os.Stdin)
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						close(lines)
						return
					}
					lines <- line
				}
			}()

			for {
				fmt.Print("> ")
				var line string
				select {
				case <-ctx.Done():
					return nil
				case l, ok := <-lines:
					if !ok {
						return nil
					}
					line = l
				}

				switch strings.TrimSpace(strings.ToLower(line)) {
				case "start":
					if err := s.Start(ctx); err != nil {
						fmt.Println("Błąd startu:", err)
						continue
					}
					fmt.Println("Start OK")
				case "stop":
					s.Stop()
					fmt.Println("Zatrzymano")
				case "sync":
					rep, err := s.SyncNow(ctx)
					if errors.Is(err, pipeline.ErrBusy) {
						fmt.Println("Synchronizacja już trwa")
						continue
					}
					if err != nil {
						fmt.Println("Błąd synchronizacji:", err)
						continue
					}
					fmt.Printf("OK: odczyt %d, zapis %d, pominięte %d\n", rep.Read, rep.Saved, rep.Skipped)
				case "reload":
					if err := a.Reload(ctx); err != nil {
						fmt.Println("Błąd reloadu:", err)
						continue
					}
					fmt.Println("Konfiguracja przeładowana")
				case "status":
					printStatus(a)
				case "last":
					printLast(ctx, a)
				case "paths":
					fmt.Println("Logi:", a.LogPath)
					fmt.Println("Config:", a.CfgPath)
					fmt.Println("Arkusz:", a.Runner.Path())
				case "quit", "exit":
					return nil
				case "":
					// enter – ignoruj
				default:
					fmt.Println("Nieznana komenda.", helpLine)
				}
			}
		}),
	}
}

const helpLine = "Komendy: start | stop | sync | reload | status | last | paths | quit"

func printStatus(a *app.App) {
	st := a.Syncer.Status()
	if st.Running {
		fmt.Println("Status: DZIAŁA", st.Integrations)
	} else {
		fmt.Println("Status: ZATRZYMANY")
	}
	fmt.Println("Tryb:", a.Cfg.Sync.Mode, "| interwał:", a.Cfg.Interval(), "| przebiegów:", st.Ticks)
	if a.Runner.Busy() {
		fmt.Println("Przebieg w toku")
	}
	if !st.LastRunAt.IsZero() {
		fmt.Println("Ostatni przebieg:", st.LastRunAt.Format(time.DateTime))
	}
	if st.LastError != nil {
		fmt.Println("Ostatni błąd:", st.LastError)
	}
}

func printLast(ctx context.Context, a *app.App) {
	imp, err := a.Runner.LastImport(ctx)
	if err != nil {
		fmt.Println("Błąd:", err)
		return
	}
	if imp == nil {
		fmt.Println("Brak importów")
		return
	}
	fmt.Printf("#%d %s [%s/%s] status=%d odczyt=%d zapis=%d pominięte=%d\n",
		imp.ImportID, imp.Filename, imp.Trigger, imp.Mode, imp.Status, imp.RowsRead, imp.RowsSaved, imp.RowsSkipped)
	if imp.LastError != "" {
		fmt.Println("Błąd:", imp.LastError)
	}
	issues, err := a.Runner.Issues(ctx, imp.ImportID)
	if err != nil {
		return
	}
	for _, is := range issues {
		fmt.Printf("  wiersz %s: %s\n", is.RowRef, is.Message)
	}
}
