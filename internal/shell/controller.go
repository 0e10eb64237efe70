package shell

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/accounts"
	"github.com/hopewell-clinic/hopewell-desktop/internal/config"
	"github.com/hopewell-clinic/hopewell-desktop/internal/deeplink"
	"github.com/hopewell-clinic/hopewell-desktop/internal/instance"
	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
	"github.com/hopewell-clinic/hopewell-desktop/internal/navigation"
	"github.com/hopewell-clinic/hopewell-desktop/internal/update"
)

const signalBacklog = 32

// Updater is the part of the update orchestrator the shell drives.
type Updater interface {
	CheckForUpdates(ctx context.Context) error
	ConfirmInstall(ctx context.Context) error
	State() update.State
}

// Options configures a Controller.
type Options struct {
	Window  Window
	Surface Surface
	Opener  navigation.Opener
	// Activations are second launches forwarded by the single-instance gate.
	Activations <-chan instance.Activation
	Accounts    *accounts.Store
	Updater     Updater
}

type updateSignal struct {
	name string
	data any
}

// Controller owns the shell's mutable state. Deep links, surface lifecycle,
// activations and update notifications are serialized through Run; window
// and navigation commands go straight to their ports.
type Controller struct {
	app      Context
	cfg      *config.Config
	log      *zap.Logger
	window   Window
	surface  Surface
	nav      *navigation.Interceptor
	accounts *accounts.Store
	updater  Updater

	activations <-chan instance.Activation
	openURLs    chan string
	lifecycle   chan bool
	updates     chan updateSignal
	stopped     chan struct{}
	stopOnce    sync.Once

	// Owned by the dispatch loop.
	bridge *deeplink.Bridge
	ready  bool
}

// New creates a controller. Nothing is dispatched until Run is called.
func New(app Context, opts Options) *Controller {
	cfg := app.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := logging.OrNop(app.Logger)
	app.Config, app.Logger = cfg, log

	return &Controller{
		app:         app,
		cfg:         cfg,
		log:         log.Named("shell"),
		window:      opts.Window,
		surface:     opts.Surface,
		nav:         navigation.NewInterceptor(app.Classifier, opts.Opener, log),
		accounts:    opts.Accounts,
		updater:     opts.Updater,
		activations: opts.Activations,
		openURLs:    make(chan string, signalBacklog),
		lifecycle:   make(chan bool, signalBacklog),
		updates:     make(chan updateSignal, signalBacklog),
		stopped:     make(chan struct{}),
		bridge: deeplink.NewBridge(deeplink.Options{
			Scheme:     cfg.Scheme,
			Host:       cfg.CallbackHost,
			PendingTTL: cfg.PendingLinkTTL.Duration,
			Logger:     log,
		}),
	}
}

// SetUpdater attaches the update orchestrator, which itself notifies the
// controller. Call it before Run.
func (c *Controller) SetUpdater(u Updater) {
	c.updater = u
}

// Run dispatches events until ctx ends. It must be called exactly once.
func (c *Controller) Run(ctx context.Context) {
	defer c.stopOnce.Do(func() { close(c.stopped) })
	activations := c.activations
	for {
		select {
		case <-ctx.Done():
			return
		case act, ok := <-activations:
			if !ok {
				activations = nil
				continue
			}
			c.onActivation(act)
		case raw := <-c.openURLs:
			c.bridge.Handle(raw)
		case ready := <-c.lifecycle:
			c.onLifecycle(ready)
		case sig := <-c.updates:
			c.onUpdate(sig)
		}
	}
}

// OpenURL queues a deep link delivered by the OS (macOS open-url, or the
// primary's own command line).
func (c *Controller) OpenURL(raw string) {
	post(c, c.openURLs, raw)
}

// HandleArgs queues the first deep link found in args, if any.
func (c *Controller) HandleArgs(args []string) {
	if link, ok := deeplink.FindInArgs(args, c.cfg.Scheme); ok {
		c.OpenURL(link)
	}
}

// SurfaceReady reports that the embedded app finished loading and can take
// signals. A deep link held while it was loading is delivered now.
func (c *Controller) SurfaceReady() {
	post(c, c.lifecycle, true)
}

// SurfaceGone reports that the embedded app was torn down or is reloading.
func (c *Controller) SurfaceGone() {
	post(c, c.lifecycle, false)
}

// post enqueues v unless the loop has stopped.
func post[T any](c *Controller, ch chan T, v T) {
	select {
	case ch <- v:
	case <-c.stopped:
	}
}

func (c *Controller) onActivation(act instance.Activation) {
	c.log.Info("second instance activated", zap.String("id", act.ID), zap.Int("args", len(act.Args)))
	c.focus()
	if link, ok := deeplink.FindInArgs(act.Args, c.cfg.Scheme); ok {
		c.bridge.Handle(link)
	}
}

func (c *Controller) onLifecycle(ready bool) {
	if ready == c.ready {
		return
	}
	c.ready = ready
	if ready {
		c.bridge.Attach(surfaceDeliverer{c.surface})
		return
	}
	c.bridge.Detach()
}

// onUpdate forwards update notifications to the titlebar. They do not wait
// for the embedded app, which may be loading or never report ready.
func (c *Controller) onUpdate(sig updateSignal) {
	if c.surface == nil {
		return
	}
	c.surface.Emit(sig.name, sig.data)
}

func (c *Controller) focus() {
	if c.window == nil {
		return
	}
	if c.window.IsMinimised() {
		c.window.Unminimise()
	}
	c.window.Show()
}

type surfaceDeliverer struct {
	surface Surface
}

func (d surfaceDeliverer) DeliverOAuth(p deeplink.Payload) error {
	if d.surface == nil {
		return errors.New("no embedded surface")
	}
	d.surface.Emit(SignalOAuthCallback, p)
	return nil
}

// UpdateAvailable implements update.Notifier.
func (c *Controller) UpdateAvailable(version string) {
	post(c, c.updates, updateSignal{SignalUpdateAvailable, version})
}

// DownloadProgress implements update.Notifier.
func (c *Controller) DownloadProgress(percent float64) {
	post(c, c.updates, updateSignal{SignalDownloadProgress, percent})
}

// UpdateDownloaded implements update.Notifier.
func (c *Controller) UpdateDownloaded(version string) {
	post(c, c.updates, updateSignal{SignalUpdateDownloaded, version})
}

var _ update.Notifier = (*Controller)(nil)
