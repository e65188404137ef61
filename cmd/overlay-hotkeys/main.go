package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/app"
	"github.com/petems/overlay-hotkeys/internal/bindings"
	"github.com/petems/overlay-hotkeys/internal/config"
	"github.com/petems/overlay-hotkeys/internal/hotkey"
	"github.com/petems/overlay-hotkeys/internal/hotkey/xhotkey"
	"github.com/petems/overlay-hotkeys/internal/hyprland"
	"github.com/petems/overlay-hotkeys/internal/ipc"
	"github.com/petems/overlay-hotkeys/internal/logging"
	"github.com/petems/overlay-hotkeys/internal/permissions"
	"github.com/petems/overlay-hotkeys/internal/platform"
	"github.com/petems/overlay-hotkeys/internal/service"
	"github.com/petems/overlay-hotkeys/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

const reloadTimeout = 2 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("overlay-hotkeys", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config.toml (default: platform config dir)")
	logLevel := fs.String("log-level", "", "log level: trace, debug, info, warn, error")
	fs.Usage = func() { usage(fs, stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cmd, rest := "run", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	if cmd == "version" {
		fmt.Fprintf(stdout, "overlay-hotkeys %s (%s)\n", Version, Commit)
		return 0
	}

	// Load config from XDG/Library/AppData
	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logging.New()
		log.Error().Err(err).Msg("Failed to load config")
		return 1
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	log := logging.NewWithLevel(level)
	log.Debug().Str("config", cfg.File()).Msg("Configuration loaded")

	env := newEnv(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		return runDaemon(ctx, env)
	case "invoke":
		return runInvoke(ctx, env, rest, stdout)
	case "trigger":
		return runTrigger(ctx, env, rest)
	case "remove-hyprland":
		return runRemove(ctx, env, rest, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(fs, stderr)
		return 2
	}
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `Usage: overlay-hotkeys [flags] [command]

Commands:
  run                          run the tray daemon (default)
  invoke <command> [json|-]    run one command and print its JSON result
  trigger <action>             deliver an action to the running daemon
  remove-hyprland [action]     remove managed binds from the Hyprland config
  version                      print the version

Invoke commands: %s

Flags:
`, strings.Join(app.Commands(), ", "))
	fs.PrintDefaults()
}

// env holds the components every subcommand shares.
type env struct {
	cfg      *config.Config
	log      zerolog.Logger
	detector *platform.Detector
	store    *bindings.Store
	writer   *hyprland.Writer
}

func newEnv(cfg *config.Config, log zerolog.Logger) *env {
	detector := platform.New(
		platform.WithProbeTimeout(cfg.ProbeTimeout()),
		platform.WithLogger(log),
	)

	var ctl *hyprland.Control
	if cfg.Hyprland.ReloadAfterApply {
		ctl = hyprland.NewControl(os.Getenv, reloadTimeout)
	}

	return &env{
		cfg:      cfg,
		log:      log,
		detector: detector,
		store:    bindings.NewStore(cfg.BindingsPath(), log),
		writer: hyprland.NewWriter(hyprland.Options{
			ConfigDir:       cfg.HyprlandConfigDir(),
			MainConfig:      cfg.Hyprland.MainConfig,
			BindFile:        cfg.Hyprland.BindFile,
			DispatchCommand: cfg.Hyprland.DispatchCommand,
			Control:         ctl,
			Logger:          log,
		}),
	}
}

func (e *env) service(mgr hotkey.Manager) *service.Service {
	return service.New(service.Config{
		Store:    e.store,
		Platform: e.detector,
		Writer:   e.writer,
		Hotkeys:  mgr,
		Logger:   e.log,
	})
}

func (e *env) socketPath() string {
	if p := e.cfg.SocketPath(); p != "" {
		return p
	}
	return ipc.DefaultSocketPath(os.Getenv)
}

func runDaemon(ctx context.Context, e *env) int {
	log := e.log
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// macOS requires explicit accessibility approval before hotkeys work
	if err := permissions.EnsurePermissions(); err != nil {
		log.Warn().Err(err).Msg("Global hotkeys will not fire until permission is granted")
	}

	var grabber hotkey.Grabber
	if info := e.detector.Detect(); xhotkey.Supported && info.SupportsNativeGlobalShortcuts {
		g, err := xhotkey.New(log)
		if err != nil {
			log.Warn().Err(err).Msg("Native global shortcuts unavailable")
		} else {
			grabber = g
			defer g.Close()
		}
	}

	var application *app.App
	hkManager := hotkey.New(grabber, func(a bindings.Action) { application.OnHotkey(a) }, log)

	svc := e.service(hkManager)
	application = app.New(app.Config{Service: svc, Logger: log})

	// Create tray first (we'll pass it to app)
	trayUI := tray.New(application, Version, Commit, log, cancel)
	application.SetStatusUpdater(trayUI)

	svc.Start()
	application.RefreshStatus()

	watcher, err := bindings.NewWatcher(e.store, log, func() {
		application.Reload()
		trayUI.Refresh()
	})
	if err != nil {
		log.Warn().Err(err).Msg("Binding store changes will need a restart")
	} else {
		go watcher.Start()
		defer watcher.Close()
	}

	server := ipc.NewServer(e.socketPath(), application.Trigger, app.NewBridge(svc).Invoke, log)
	if err := server.Listen(); err != nil {
		log.Error().Err(err).Msg("Failed to open trigger socket")
		if err := application.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		return 1
	}
	go func() {
		if err := server.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("Trigger socket stopped")
		}
	}()
	defer server.Close()

	log.Info().Str("version", Version).Msg("overlay-hotkeys starting")

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Tray error")
		return 1
	}

	if err := application.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	return 0
}

func runInvoke(ctx context.Context, e *env, args []string, stdout io.Writer) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(os.Stderr, "usage: overlay-hotkeys invoke <command> [json|-]")
		return 2
	}

	var payload []byte
	if len(args) == 2 {
		payload = []byte(args[1])
		if args[1] == "-" {
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				e.log.Error().Err(err).Msg("Failed to read payload")
				return 1
			}
			payload = raw
		}
	}

	out, err := e.invoke(ctx, args[0], payload)
	if err != nil {
		fmt.Fprintln(stdout, string(app.ErrorJSON(err)))
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

// invoke sends the command to the running daemon so binding changes are
// registered by its hotkey manager. Without a daemon the command runs
// against a local service that only persists.
func (e *env) invoke(ctx context.Context, command string, payload []byte) ([]byte, error) {
	out, err := ipc.Invoke(ctx, e.socketPath(), command, payload)
	if !errors.Is(err, ipc.ErrDaemonNotRunning) {
		return out, err
	}
	e.log.Debug().Err(err).Str("command", command).Msg("Running command without daemon")

	svc := e.service(nil)
	if err := svc.EnsureDefaults(); err != nil {
		e.log.Warn().Err(err).Msg("Could not write default bindings")
	}
	return app.NewBridge(svc).Invoke(ctx, command, payload)
}

func runTrigger(ctx context.Context, e *env, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: overlay-hotkeys trigger <action>")
		return 2
	}
	action, err := bindings.ParseAction(args[0])
	if err != nil {
		e.log.Error().Err(err).Msg("Invalid action")
		return 2
	}
	if err := ipc.Trigger(ctx, e.socketPath(), action); err != nil {
		e.log.Error().Err(err).Str("action", string(action)).Msg("Trigger failed")
		return 1
	}
	return 0
}

func runRemove(ctx context.Context, e *env, args []string, stdout io.Writer) int {
	actions := bindings.Actions
	if len(args) == 1 {
		action, err := bindings.ParseAction(args[0])
		if err != nil {
			e.log.Error().Err(err).Msg("Invalid action")
			return 2
		}
		actions = []bindings.Action{action}
	}

	svc := e.service(nil)
	for _, action := range actions {
		res, err := svc.RemoveHyprlandBinding(ctx, action)
		if err != nil {
			fmt.Fprintln(stdout, string(app.ErrorJSON(err)))
			return 1
		}
		fmt.Fprintf(stdout, "%s: removed bind=%t source=%t (%s)\n", action, res.RemovedBind, res.RemovedSource, res.BindFilePath)
	}
	return 0
}
