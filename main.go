// Retrace records relative mouse movement in fixed time quanta and replays
// it with the same timing.
//
// Usage:
//
//	retrace [--config file.yaml] [--headless] [--log-level debug]
//
// The record hotkey (T by default) starts and stops a recording, the
// playback hotkey (P) replays it and the stop hotkey (S) cancels either.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/pflag"

	"Retrace/assets"
	"Retrace/config"
	"Retrace/i18n"
	"Retrace/input"
	"Retrace/logging"
	"Retrace/macro"
	"Retrace/ui"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
	logFormat  string
	lang       string
	headless   bool
	version    bool
	help       bool
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("retrace", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "YAML file layered over the built-in defaults")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "text or json (overrides config)")
	flagSet.StringVar(&opts.lang, "lang", "", "UI language: en, pt, es or ru")
	flagSet.BoolVar(&opts.headless, "headless", false, "run without a window, global hotkeys only")
	flagSet.BoolVar(&opts.version, "version", false, "print the version and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return options{help: true}, flagSet, nil
		}
		return options{}, flagSet, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, flagSet, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, flagSet, nil
}

func run(args []string) error {
	opts, flagSet, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.help {
		fmt.Fprintf(os.Stderr, "Usage: retrace [flags]\n\n%s", flagSet.FlagUsages())
		return nil
	}
	if opts.version {
		fmt.Println("retrace", version)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if opts.lang != "" {
		i18n.SetLang(opts.lang)
	}

	hotkeys, err := cfg.Hotkeys.Parse()
	if err != nil {
		return err
	}

	devices, devErr := input.Open(input.Options{
		MouseDevices:    cfg.Devices.Mouse,
		KeyboardDevices: cfg.Devices.Keyboard,
		Hotkeys:         hotkeys,
		Logger:          logger,
	})
	if devErr != nil && opts.headless {
		return fmt.Errorf("open input devices: %w", devErr)
	}
	if devErr == nil {
		defer func() {
			if err := devices.Close(); err != nil {
				logger.Warn("closing input devices", "error", err)
			}
		}()
	}

	if opts.headless {
		return runHeadless(cfg, devices, hotkeys, logger)
	}
	return runWindowed(cfg, devices, devErr, hotkeys, logger)
}

func newSession(cfg config.Config, devices *input.Devices, logger *slog.Logger, onError func(error)) (*macro.Session, error) {
	return macro.NewSession(macro.Options{
		Quantum:      cfg.Quantum,
		TickInterval: cfg.TickInterval,
		Source:       devices.Source,
		Sink:         devices.Sink,
		Triggers:     []macro.Trigger{devices.Hotkeys},
		Logger:       logger,
		OnError:      onError,
	})
}

func runHeadless(cfg config.Config, devices *input.Devices, hotkeys input.Hotkeys, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !devices.GlobalHotkeys {
		return errors.New("headless mode needs a keyboard for the global hotkeys")
	}

	var a *AppManager
	session, err := newSession(cfg, devices, logger, func(err error) { a.ReportError(err) })
	if err != nil {
		return err
	}
	a = NewAppManager(session, cfg, hotkeys, false, logger)
	defer a.Shutdown()

	session.StartSchedulerLoop(ctx)
	go a.tick(ctx)
	logger.Info("retrace running headless",
		"record", string(hotkeys.Record),
		"playback", string(hotkeys.Playback),
		"stop", string(hotkeys.Stop))

	<-ctx.Done()
	logger.Info("shutting down")
	session.Close()
	return nil
}

func runWindowed(cfg config.Config, devices *input.Devices, devErr error, hotkeys input.Hotkeys, logger *slog.Logger) error {
	fyneApp := app.NewWithID("io.github.retrace")
	fyneApp.SetIcon(fyne.NewStaticResource("icon.svg", assets.Icon))
	fyneApp.Settings().SetTheme(ui.NewCustomTheme())

	if devErr != nil {
		// Keep the window up so the user sees why nothing works.
		logger.Error("input devices unavailable", "error", devErr)
		devices = &input.Devices{Source: nullSource{}, Sink: nullSink{}, Hotkeys: macro.TriggerFunc(func() macro.Triggers { return macro.Triggers{} })}
	}

	var a *AppManager
	session, err := newSession(cfg, devices, logger, func(err error) { a.ReportError(err) })
	if err != nil {
		return err
	}
	a = NewAppManager(session, cfg, hotkeys, !devices.GlobalHotkeys, logger)

	w := ui.CreateMainWindow(a, fyneApp, ui.HotkeyHint(hotkeys.Record, hotkeys.Playback, hotkeys.Stop))
	a.mainWindow = w

	ctx, cancel := context.WithCancel(context.Background())
	w.SetOnClosed(func() {
		cancel()
		session.Close()
		a.Shutdown()
	})

	if devErr != nil {
		a.DisableControls(i18n.T("Input devices unavailable"))
		fyneApp.Lifecycle().SetOnStarted(func() { a.ReportError(devErr) })
	} else {
		session.StartSchedulerLoop(ctx)
		go a.tick(ctx)
	}

	w.ShowAndRun()
	return nil
}

// nullSource and nullSink stand in when no input backend could be opened;
// the controls are disabled so they are never exercised.
type nullSource struct{}

func (nullSource) Drain() ([]macro.Movement, error) { return nil, nil }

type nullSink struct{}

func (nullSink) Inject(macro.Movement) error { return nil }
