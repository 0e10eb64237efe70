package update

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
)

var (
	// ErrCycleInProgress is returned when a check is requested while a
	// previous cycle has not reached a terminal phase.
	ErrCycleInProgress = errors.New("update cycle already in progress")
	// ErrNothingToInstall is returned by ConfirmInstall outside Downloaded.
	ErrNothingToInstall = errors.New("no downloaded update to install")
)

// Policy decides what happens once an update is downloaded.
type Policy int

const (
	// PolicyAuto installs and restarts after the grace delay.
	PolicyAuto Policy = iota
	// PolicyConfirm waits for ConfirmInstall.
	PolicyConfirm
)

// ParsePolicy maps "auto"/"confirm" to a Policy. Anything else is auto.
func ParsePolicy(s string) Policy {
	if s == "confirm" {
		return PolicyConfirm
	}
	return PolicyAuto
}

// Release describes a published version.
type Release struct {
	Version  string `json:"version"`
	URL      string `json:"url,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Checksum string `json:"checksum,omitempty"` // "sha256:<hex>"
}

// Service is the external update feed.
type Service interface {
	// Check reports whether a release newer than current exists.
	Check(ctx context.Context, current string) (Release, bool, error)
	// Download fetches rel, reporting progress in percent, and returns the
	// path of the downloaded artifact.
	Download(ctx context.Context, rel Release, progress func(percent float64)) (string, error)
	// Install puts the artifact in place of the running executable.
	Install(ctx context.Context, rel Release, artifact string) error
}

// Notifier receives the transitions the UI shows.
type Notifier interface {
	UpdateAvailable(version string)
	DownloadProgress(percent float64)
	UpdateDownloaded(version string)
}

// Options configures an Orchestrator.
type Options struct {
	Service        Service
	Notifier       Notifier
	CurrentVersion string
	Policy         Policy
	GraceDelay     time.Duration
	// Restart relaunches the process after a successful install.
	Restart func() error
	Logger  *zap.Logger
	// AfterFunc schedules f after d and returns a stop function. Defaults
	// to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// Orchestrator sequences check → download → install.
type Orchestrator struct {
	svc     Service
	notify  Notifier
	current string
	policy  Policy
	grace   time.Duration
	restart func() error
	log     *zap.Logger
	after   func(time.Duration, func()) func() bool

	mu          sync.Mutex
	state       State
	release     Release
	artifact    string
	cancelTimer func() bool
	// installing stays set after an install starts; only a new cycle clears it.
	installing bool
}

// NewOrchestrator creates an orchestrator in Idle.
func NewOrchestrator(opts Options) *Orchestrator {
	after := opts.AfterFunc
	if after == nil {
		after = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	notify := opts.Notifier
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Orchestrator{
		svc:     opts.Service,
		notify:  notify,
		current: opts.CurrentVersion,
		policy:  opts.Policy,
		grace:   opts.GraceDelay,
		restart: opts.Restart,
		log:     logging.OrNop(opts.Logger).Named("update"),
		after:   after,
		state:   State{Phase: Idle},
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CheckForUpdates runs one cycle: Checking, then UpToDate or Available →
// Downloading → Downloaded. Errors put the machine in Failed and are also
// returned to the caller.
func (o *Orchestrator) CheckForUpdates(ctx context.Context) error {
	o.mu.Lock()
	if !o.state.Phase.canStartCycle() {
		o.mu.Unlock()
		return ErrCycleInProgress
	}
	o.installing = false
	o.setLocked(State{Phase: Checking})
	o.mu.Unlock()

	if o.svc == nil {
		return o.fail("check", errors.New("no update service configured"))
	}

	rel, available, err := o.svc.Check(ctx, o.current)
	if err != nil {
		return o.fail("check", err)
	}
	if !available {
		o.set(State{Phase: UpToDate, Version: o.current})
		return nil
	}

	o.set(State{Phase: Available, Version: rel.Version})
	o.notify.UpdateAvailable(rel.Version)

	artifact, err := o.download(ctx, rel)
	if err != nil {
		return o.fail("download", err)
	}

	o.mu.Lock()
	o.release = rel
	o.artifact = artifact
	o.setLocked(State{Phase: Downloaded, Version: rel.Version})
	o.mu.Unlock()
	o.notify.UpdateDownloaded(rel.Version)

	if o.policy == PolicyAuto {
		o.scheduleInstall()
	} else {
		o.log.Info("update downloaded, waiting for confirmation", zap.String("version", rel.Version))
	}
	return nil
}

// download reports progress as a non-decreasing sequence in [0, 100] that
// always ends at 100.
func (o *Orchestrator) download(ctx context.Context, rel Release) (string, error) {
	last := 0.0
	report := func(p float64) {
		switch {
		case p != p: // NaN
			p = last
		case p < last:
			p = last
		case p > 100:
			p = 100
		}
		last = p
		o.set(State{Phase: Downloading, Version: rel.Version, Percent: p})
		o.notify.DownloadProgress(p)
	}

	report(0)
	artifact, err := o.svc.Download(ctx, rel, func(p float64) {
		if p < 100 {
			report(p)
		}
	})
	if err != nil {
		return "", err
	}
	report(100)
	return artifact, nil
}

// ConfirmInstall installs a downloaded update now.
func (o *Orchestrator) ConfirmInstall(ctx context.Context) error {
	o.mu.Lock()
	if o.state.Phase != Downloaded {
		o.mu.Unlock()
		return ErrNothingToInstall
	}
	if o.cancelTimer != nil {
		o.cancelTimer()
		o.cancelTimer = nil
	}
	o.mu.Unlock()
	return o.install(ctx)
}

func (o *Orchestrator) scheduleInstall() {
	o.log.Info("installing update after grace delay", zap.Duration("delay", o.grace))
	stop := o.after(o.grace, func() {
		if err := o.install(context.Background()); err != nil {
			o.log.Error("automatic update install failed", zap.Error(err))
		}
	})
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Phase == Downloaded && !o.installing {
		o.cancelTimer = stop
	}
}

// install is irrevocable once it starts: the process restarts into the new
// version.
func (o *Orchestrator) install(ctx context.Context) error {
	o.mu.Lock()
	if o.installing || o.state.Phase != Downloaded {
		o.mu.Unlock()
		return ErrNothingToInstall
	}
	o.installing = true
	o.cancelTimer = nil
	rel, artifact := o.release, o.artifact
	o.mu.Unlock()

	if err := o.svc.Install(ctx, rel, artifact); err != nil {
		return o.fail("install", err)
	}
	o.log.Info("update installed, restarting", zap.String("version", rel.Version))
	if o.restart == nil {
		return nil
	}
	if err := o.restart(); err != nil {
		return o.fail("restart", err)
	}
	return nil
}

// Run checks after initialDelay and then every interval until ctx ends.
func (o *Orchestrator) Run(ctx context.Context, initialDelay, interval time.Duration) {
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := o.CheckForUpdates(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
			o.log.Debug("update cycle ended with error", zap.Error(err))
		}
		timer.Reset(interval)
	}
}

func (o *Orchestrator) fail(stage string, err error) error {
	err = fmt.Errorf("update %s failed: %w", stage, err)
	o.log.Warn("update failed", zap.String("stage", stage), zap.Error(err))
	o.set(State{Phase: Failed, Reason: err.Error()})
	return err
}

func (o *Orchestrator) set(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLocked(s)
}

func (o *Orchestrator) setLocked(s State) {
	prev := o.state
	o.state = s
	if prev.Phase != s.Phase {
		o.log.Debug("update state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

type nopNotifier struct{}

func (nopNotifier) UpdateAvailable(string)   {}
func (nopNotifier) DownloadProgress(float64) {}
func (nopNotifier) UpdateDownloaded(string)  {}
