package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/accounts"
	"github.com/hopewell-clinic/hopewell-desktop/internal/config"
	"github.com/hopewell-clinic/hopewell-desktop/internal/desktop"
	"github.com/hopewell-clinic/hopewell-desktop/internal/handshake"
	"github.com/hopewell-clinic/hopewell-desktop/internal/instance"
	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
	"github.com/hopewell-clinic/hopewell-desktop/internal/protocol"
	"github.com/hopewell-clinic/hopewell-desktop/internal/routes"
	"github.com/hopewell-clinic/hopewell-desktop/internal/shell"
	"github.com/hopewell-clinic/hopewell-desktop/internal/update"
)

// relaunchWait is how long a process started by the updater waits for its
// predecessor to release the single-instance lock.
const relaunchWait = 15 * time.Second

func runShell(opts *RootOptions, args []string) error {
	cfg, cfgErr := config.Load(opts.ConfigPath)
	if opts.Dev {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Development = cfg.Log.Development
	log := logging.NewOrNop(logCfg)
	defer func() { _ = log.Sync() }()

	if cfgErr != nil {
		log.Warn("failed to load config, using defaults", zap.Error(cfgErr))
	}

	var wait time.Duration
	if os.Getenv(update.RelaunchEnv) != "" {
		wait = relaunchWait
	}
	primary, err := instance.Acquire(instance.Options{
		Dir:    cfg.Dir(),
		Args:   args,
		Wait:   wait,
		Logger: log,
	})
	if errors.Is(err, instance.ErrNotPrimary) {
		// The running shell has our arguments; no window here.
		return nil
	}
	if err != nil {
		return err
	}
	defer primary.Close()

	if exe, err := os.Executable(); err != nil {
		log.Warn("cannot register url scheme", zap.Error(err))
	} else if err := protocol.Register(cfg.Scheme, exe); err != nil {
		log.Warn("failed to register url scheme", zap.String("scheme", cfg.Scheme), zap.Error(err))
	}

	app := newApp(cfg, log, primary.Activations(), args)

	if err := os.MkdirAll(cfg.PartitionDir(), 0700); err != nil {
		log.Warn("cannot create webview partition", zap.String("dir", cfg.PartitionDir()), zap.Error(err))
	}
	winOpts, linuxOpts := webviewOptions(cfg)

	logLevel := logger.INFO
	if cfg.Log.Development {
		logLevel = logger.DEBUG
	}
	bgR, bgG, bgB := desktop.BackgroundRGB(app.theme)

	return wails.Run(&options.App{
		Title:     "Hopewell Clinic",
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		MinWidth:  cfg.Window.MinWidth,
		MinHeight: cfg.Window.MinHeight,
		Frameless: true,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: bgR, G: bgG, B: bgB, A: 1},
		OnStartup:        app.startup,
		OnDomReady:       app.domReady,
		OnBeforeClose:    app.beforeClose,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
		Logger:             logging.NewWailsAdapter(log),
		LogLevel:           logLevel,
		LogLevelProduction: logger.ERROR,
		Mac: &mac.Options{
			OnUrlOpen: app.controller.OpenURL,
		},
		Windows: winOpts,
		Linux:   linuxOpts,
		Debug: options.Debug{
			OpenInspectorOnStartup: cfg.Log.Development,
		},
	})
}

// webviewOptions keeps the embedded session in the configured partition.
// Only WebView2 takes an explicit data path. WebKitGTK keys its store by
// program name and WKWebView by bundle identifier.
func webviewOptions(cfg *config.Config) (*windows.Options, *linux.Options) {
	return &windows.Options{WebviewUserDataPath: cfg.PartitionDir()},
		&linux.Options{ProgramName: protocol.AppID}
}

// newApp builds the application context and every component around it.
func newApp(cfg *config.Config, log *zap.Logger, activations <-chan instance.Activation, args []string) *App {
	appCtx := shell.Context{
		Config:     cfg,
		Logger:     log,
		Classifier: routes.NewClassifier(cfg.PublicRoutes...),
	}

	secret, insecure, err := cfg.ResolveSecret()
	switch {
	case err != nil:
		log.Warn("handshake disabled: set HOPEWELL_SECRET", zap.Error(err))
	default:
		if insecure {
			log.Warn("using the insecure default handshake secret; set HOPEWELL_SECRET")
		}
		if appCtx.Signer, err = handshake.NewSigner(secret); err != nil {
			log.Error("failed to create handshake signer", zap.Error(err))
		}
	}

	rt := desktop.NewRuntime(log)
	ctrl := shell.New(appCtx, shell.Options{
		Window:      rt,
		Surface:     rt,
		Opener:      rt,
		Activations: activations,
		Accounts:    accounts.NewStore(filepath.Join(cfg.Dir(), accounts.FileName), log),
	})

	orch := update.NewOrchestrator(update.Options{
		Service: update.NewReleaseService(update.ReleaseOptions{
			Owner:     cfg.Update.Owner,
			Repo:      cfg.Update.Repo,
			UserAgent: "hopewell-desktop/" + desktop.Version,
			Logger:    log,
		}),
		Notifier:       ctrl,
		CurrentVersion: desktop.Version,
		Policy:         update.ParsePolicy(cfg.Update.Policy),
		GraceDelay:     cfg.Update.GraceDelay.Duration,
		Restart:        update.Relaunch(nil, rt.Close),
		Logger:         log,
	})
	ctrl.SetUpdater(orch)

	return &App{
		cfg:        cfg,
		log:        log.Named("app"),
		runtime:    rt,
		controller: ctrl,
		updater:    orch,
		args:       args,
		theme:      desktop.DetectSystemTheme(),
	}
}

// runUpdates starts the periodic update check unless this is a dev build.
func (a *App) runUpdates(ctx context.Context, orch *update.Orchestrator) {
	if desktop.Version == "0.1.0-dev" {
		a.log.Info("development build, automatic updates disabled")
		return
	}
	orch.Run(ctx, a.cfg.Update.InitialDelay.Duration, a.cfg.Update.Interval.Duration)
}
