//go:build windows && !dev

package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/getlantern/systray"

	"github.com/bartek5186/xls2jobs/internal/app"
	conf "github.com/bartek5186/xls2jobs/internal/config"
	"github.com/bartek5186/xls2jobs/internal/pipeline"
	"github.com/bartek5186/xls2jobs/internal/server"
)

//go:embed assets/icon.ico
var iconData []byte

// wersję możesz nadpisać przez: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

func main() {
	_, _ = conf.LoadDotEnv(".env", ".env.local")

	a, err := app.Bootstrap(app.Options{})
	if err != nil {
		panic(err)
	}
	log := a.Log

	// kontekst sterujący życiem procesu (CTRL+C / zamknięcie sesji)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// endpoint tylko gdy ustawiono sekret (maszyna pełni rolę serwera)
	if a.ServesEndpoint() {
		srv := server.New(log, a.Store, a.Cfg.Sync.Secret)
		go func() {
			if err := srv.Run(ctx, a.Cfg.Server.Addr); err != nil {
				log.Error().Err(err).Msg("HTTP server")
			}
		}()
	}

	// jeśli proces dostanie sygnał – zatrzymaj syncer i zamknij tray
	go func() {
		<-ctx.Done()
		a.Syncer.Stop()
		systray.Quit()
	}()

	tooltip := func(state string) {
		systray.SetTooltip(fmt.Sprintf("xls2jobs %s — %s", ver, state))
	}

	systray.Run(func() {
		if len(iconData) > 0 {
			systray.SetIcon(iconData)
		}
		systray.SetTooltip(fmt.Sprintf("xls2jobs %s", ver))

		mStart := systray.AddMenuItem("Start synchronizacji", "Uruchom harmonogram i obserwację pliku")
		mStop := systray.AddMenuItem("Stop synchronizacji", "Zatrzymaj harmonogram")
		mStop.Disable()
		mSync := systray.AddMenuItem("Synchronizuj teraz", "Jednorazowy przebieg")

		systray.AddSeparator()
		mOpenSheet := systray.AddMenuItem("Otwórz arkusz", "Pokaż obserwowany plik")
		mOpenLogs := systray.AddMenuItem("Otwórz logi", "Pokaż plik log")
		mOpenCfg := systray.AddMenuItem("Ustawienia (config.json)", "Otwórz plik konfiguracyjny")
		mReload := systray.AddMenuItem("Przeładuj konfigurację", "Wczytaj ponownie config.json")
		systray.AddSeparator()
		mAbout := systray.AddMenuItem(fmt.Sprintf("O programie (%s)", ver), "")
		mQuit := systray.AddMenuItem("Wyjście", "Zamknij aplikację")

		// AutoStart harmonogramu (nie mylić z autostartem Windows!)
		if a.Cfg.AutoStart {
			if err := a.Syncer.Start(ctx); err == nil {
				mStart.Disable()
				mStop.Enable()
				tooltip("działa")
			} else {
				log.Error().Msgf("AutoStart nieudany: %v", err)
				tooltip("błąd startu")
			}
		}

		go func() {
			for {
				select {
				case <-mStart.ClickedCh:
					if err := a.Syncer.Start(ctx); err != nil {
						log.Error().Msgf("Start error: %v", err)
						tooltip("błąd startu")
						continue
					}
					mStart.Disable()
					mStop.Enable()
					tooltip("działa")

				case <-mStop.ClickedCh:
					a.Syncer.Stop()
					mStop.Disable()
					mStart.Enable()
					tooltip("zatrzymane")

				case <-mSync.ClickedCh:
					go func() {
						rep, err := a.Syncer.SyncNow(ctx)
						switch {
						case errors.Is(err, pipeline.ErrBusy):
							log.Info().Msg("Synchronizacja już trwa")
						case err != nil:
							tooltip("błąd synchronizacji")
						default:
							tooltip(fmt.Sprintf("zapisano %d, pominięto %d", rep.Saved, rep.Skipped))
						}
					}()

				case <-mOpenSheet.ClickedCh:
					openInExplorer(a.Runner.Path())

				case <-mOpenLogs.ClickedCh:
					openInExplorer(a.LogPath)

				case <-mOpenCfg.ClickedCh:
					openInExplorer(a.CfgPath)

				case <-mReload.ClickedCh:
					if err := a.Reload(ctx); err != nil {
						log.Error().Msgf("Błąd reloadu: %v", err)
					}

				case <-mAbout.ClickedCh:
					log.Info().Msgf("xls2jobs %s | %s", ver, runtime.Version())

				case <-mQuit.ClickedCh:
					// łagodne zamykanie
					cancel()
					a.Close()
					systray.Quit()
					return
				}
			}
		}()
	}, func() {
		// onExit — daj chwilę loggerowi na flush
		time.Sleep(50 * time.Millisecond)
	})
}

// przenośne otwieranie plików/katalogów w domyślnej aplikacji
func openInExplorer(path string) {
	switch runtime.GOOS {
	case "windows":
		// "start" musi być uruchomiony przez cmd /C, z pustym tytułem okna ""
		_ = exec.Command("cmd", "/C", "start", "", path).Start()
	case "darwin":
		_ = exec.Command("open", path).Start()
	default:
		_ = exec.Command("xdg-open", path).Start()
	}
}
