package logging

import (
	"go.uber.org/zap"

	wailsLogger "github.com/wailsapp/wails/v2/pkg/logger"
)

// WailsAdapter routes Wails runtime logging into zap.
type WailsAdapter struct {
	log *zap.Logger
}

var _ wailsLogger.Logger = (*WailsAdapter)(nil)

// NewWailsAdapter wraps l for use as options.App.Logger.
func NewWailsAdapter(l *zap.Logger) *WailsAdapter {
	return &WailsAdapter{log: OrNop(l).Named("wails").WithOptions(zap.AddCallerSkip(1))}
}

func (w *WailsAdapter) Print(message string)   { w.log.Info(message) }
func (w *WailsAdapter) Trace(message string)   { w.log.Debug(message) }
func (w *WailsAdapter) Debug(message string)   { w.log.Debug(message) }
func (w *WailsAdapter) Info(message string)    { w.log.Info(message) }
func (w *WailsAdapter) Warning(message string) { w.log.Warn(message) }
func (w *WailsAdapter) Error(message string)   { w.log.Error(message) }

// Fatal logs at error level. Wails calls Fatal right before it exits on its
// own, so the adapter must not terminate the process a second time.
func (w *WailsAdapter) Fatal(message string) { w.log.Error(message, zap.Bool("fatal", true)) }
