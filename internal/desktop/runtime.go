// Package desktop adapts the Wails runtime to the shell's window, surface and
// browser ports.
package desktop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
	"github.com/hopewell-clinic/hopewell-desktop/internal/navigation"
	"github.com/hopewell-clinic/hopewell-desktop/internal/shell"
)

// Version is set at build time via ldflags
var Version = "0.1.0-dev"

// surfaceObject is the frontend object that owns the embedded app frame.
const surfaceObject = "window.hopewellSurface"

// Runtime forwards port calls to the Wails runtime once Startup has supplied
// its context. Calls made before Startup, or after Shutdown, are dropped:
// Wails aborts the process when given a foreign context.
type Runtime struct {
	mu  sync.RWMutex
	ctx context.Context
	log *zap.Logger

	// Wails calls, replaced in tests.
	emit       func(ctx context.Context, name string, data ...interface{})
	openURL    func(ctx context.Context, url string)
	execJS     func(ctx context.Context, js string)
	windowCall func(ctx context.Context, op windowOp) bool
}

var (
	_ shell.Window      = (*Runtime)(nil)
	_ shell.Surface     = (*Runtime)(nil)
	_ navigation.Opener = (*Runtime)(nil)
)

// NewRuntime creates an adapter bound to the real Wails runtime.
func NewRuntime(logger *zap.Logger) *Runtime {
	return &Runtime{
		log:        logging.OrNop(logger).Named("desktop"),
		emit:       wailsRuntime.EventsEmit,
		openURL:    wailsRuntime.BrowserOpenURL,
		execJS:     wailsRuntime.WindowExecJS,
		windowCall: wailsWindowCall,
	}
}

// Startup records the Wails context. Wire it to options.App.OnStartup.
func (r *Runtime) Startup(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
}

// Shutdown forgets the Wails context.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = nil
}

func (r *Runtime) context() (context.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctx, r.ctx != nil
}

// Emit implements shell.Surface.
func (r *Runtime) Emit(signal string, data ...any) {
	ctx, ok := r.context()
	if !ok {
		r.log.Debug("dropping signal before startup", zap.String("signal", signal))
		return
	}
	r.emit(ctx, signal, data...)
}

// Navigate implements shell.Surface.
func (r *Runtime) Navigate(url string) {
	arg, err := json.Marshal(url)
	if err != nil {
		return
	}
	r.callSurface(fmt.Sprintf("navigate(%s)", arg))
}

func (r *Runtime) Back()    { r.callSurface("back()") }
func (r *Runtime) Forward() { r.callSurface("forward()") }
func (r *Runtime) Reload()  { r.callSurface("reload()") }

func (r *Runtime) callSurface(call string) {
	ctx, ok := r.context()
	if !ok {
		return
	}
	r.execJS(ctx, fmt.Sprintf("%s && %s.%s", surfaceObject, surfaceObject, call))
}

// OpenExternal implements navigation.Opener.
func (r *Runtime) OpenExternal(url string) error {
	ctx, ok := r.context()
	if !ok {
		return fmt.Errorf("desktop runtime not started")
	}
	r.openURL(ctx, url)
	return nil
}

type windowOp int

const (
	opMinimise windowOp = iota
	opToggleMaximise
	opIsMaximised
	opIsMinimised
	opUnminimise
	opShow
	opQuit
)

func wailsWindowCall(ctx context.Context, op windowOp) bool {
	switch op {
	case opMinimise:
		wailsRuntime.WindowMinimise(ctx)
	case opToggleMaximise:
		wailsRuntime.WindowToggleMaximise(ctx)
	case opIsMaximised:
		return wailsRuntime.WindowIsMaximised(ctx)
	case opIsMinimised:
		return wailsRuntime.WindowIsMinimised(ctx)
	case opUnminimise:
		wailsRuntime.WindowUnminimise(ctx)
	case opShow:
		wailsRuntime.WindowShow(ctx)
	case opQuit:
		wailsRuntime.Quit(ctx)
	}
	return false
}

func (r *Runtime) window(op windowOp) bool {
	ctx, ok := r.context()
	if !ok {
		return false
	}
	return r.windowCall(ctx, op)
}

func (r *Runtime) Minimise()         { r.window(opMinimise) }
func (r *Runtime) ToggleMaximise()   { r.window(opToggleMaximise) }
func (r *Runtime) IsMaximised() bool { return r.window(opIsMaximised) }
func (r *Runtime) IsMinimised() bool { return r.window(opIsMinimised) }
func (r *Runtime) Unminimise()       { r.window(opUnminimise) }
func (r *Runtime) Show()             { r.window(opShow) }

// Close quits the application; the shell has a single window.
func (r *Runtime) Close() { r.window(opQuit) }
