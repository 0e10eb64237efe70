// Package shell composes the desktop shell: it owns the window and the
// embedded surface ports, routes second-instance activations and OS deep
// links through one dispatch loop, and answers the titlebar's commands.
package shell

import (
	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/config"
	"github.com/hopewell-clinic/hopewell-desktop/internal/handshake"
	"github.com/hopewell-clinic/hopewell-desktop/internal/routes"
)

// Context is the process-wide state built once by the entry point and handed
// to the controller. Signer is nil when no handshake secret is configured.
type Context struct {
	Config     *config.Config
	Logger     *zap.Logger
	Signer     *handshake.Signer
	Classifier *routes.Classifier
}

// Window is the native top-level window.
type Window interface {
	Minimise()
	ToggleMaximise()
	IsMaximised() bool
	IsMinimised() bool
	Unminimise()
	Show()
	Close()
}

// Surface is the embedded web content plus the titlebar that hosts it.
// Emit sends a named signal to the page; the rest drive its history.
type Surface interface {
	Emit(signal string, data ...any)
	Navigate(url string)
	Back()
	Forward()
	Reload()
}

// Signals emitted to the page.
const (
	SignalOAuthCallback    = "oauth-callback"
	SignalLoadingStatus    = "loading-status"
	SignalURLChanged       = "url-changed"
	SignalLoadError        = "load-error"
	SignalWindowMaximized  = "window-maximized"
	SignalUpdateAvailable  = "update-available"
	SignalDownloadProgress = "download-progress"
	SignalUpdateDownloaded = "update-downloaded"
	SignalAccountSelector  = "account-selector"
)
