package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/accounts"
	"github.com/hopewell-clinic/hopewell-desktop/internal/config"
	"github.com/hopewell-clinic/hopewell-desktop/internal/desktop"
	"github.com/hopewell-clinic/hopewell-desktop/internal/shell"
	"github.com/hopewell-clinic/hopewell-desktop/internal/update"
)

// App is bound to the frontend. Its exported methods are the titlebar's and
// the embedded page's bridge into the shell.
type App struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cfg        *config.Config
	log        *zap.Logger
	runtime    *desktop.Runtime
	controller *shell.Controller
	updater    *update.Orchestrator
	args       []string
	theme      string
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.runtime.Startup(ctx)
	a.ctx, a.cancel = context.WithCancel(ctx)
	go a.controller.Run(a.ctx)
	go a.runUpdates(a.ctx, a.updater)
	// A cold start from the browser carries the callback on our own command line.
	a.controller.HandleArgs(a.args)
}

// domReady loads the embedded app once the titlebar page is up.
func (a *App) domReady(ctx context.Context) {
	a.controller.NavigateHome()
}

func (a *App) beforeClose(ctx context.Context) (prevent bool) {
	a.controller.SurfaceGone()
	return false
}

// shutdown is called when the app is closing.
func (a *App) shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.runtime.Shutdown(ctx)
}

// GetVersion returns the application version.
func (a *App) GetVersion() string {
	return desktop.Version
}

// FrameInfo tells the titlebar page how to host the embedded app.
type FrameInfo struct {
	URL            string `json:"url"`
	Origin         string `json:"origin"`
	TitlebarHeight int    `json:"titlebarHeight"`
}

// Frame returns the embedded app's home URL and origin. The page only
// exchanges messages with that origin.
func (a *App) Frame() FrameInfo {
	return FrameInfo{
		URL:            a.cfg.AppURL,
		Origin:         a.cfg.AppOrigin(),
		TitlebarHeight: a.cfg.Window.TitlebarHeight,
	}
}

// SystemTheme returns "light" or "dark" for the titlebar.
func (a *App) SystemTheme() string {
	return a.theme
}

// Window controls

func (a *App) MinimizeWindow() { a.controller.MinimiseWindow() }
func (a *App) MaximizeWindow() { a.controller.ToggleMaximiseWindow() }
func (a *App) CloseWindow()    { a.controller.CloseWindow() }
func (a *App) IsMaximized() bool {
	return a.controller.IsMaximised()
}

// Navigation controls

func (a *App) NavigateBack()    { a.controller.NavigateBack() }
func (a *App) NavigateForward() { a.controller.NavigateForward() }
func (a *App) ReloadPage()      { a.controller.Reload() }
func (a *App) NavigateHome()    { a.controller.NavigateHome() }

// WillNavigate is called by the navigation guard before the embedded page
// leaves. True means the navigation was sent to the system browser and must
// be cancelled.
func (a *App) WillNavigate(url string) bool {
	return a.controller.WillNavigate(url)
}

// NewWindow answers window.open from the embedded page: "allow" or "deny".
func (a *App) NewWindow(url string) string {
	return a.controller.NewWindow(url).String()
}

// OpenExternal opens url in the system browser.
func (a *App) OpenExternal(url string) bool {
	return a.controller.OpenExternal(url)
}

// HandshakeResponse signs the page's challenge. Null means no shell secret.
func (a *App) HandshakeResponse(challenge string) *string {
	return a.controller.HandshakeResponse(challenge)
}

// Embedded page lifecycle

func (a *App) SurfaceReady()               { a.controller.SurfaceReady() }
func (a *App) SurfaceGone()                { a.controller.SurfaceGone() }
func (a *App) ReportLoading(loading bool)  { a.controller.ReportLoading(loading) }
func (a *App) ReportURLChanged(url string) { a.controller.ReportURLChanged(url) }
func (a *App) ReportLoadError(desc string) { a.controller.ReportLoadError(desc) }

// Accounts

func (a *App) ShowAccountSelector() error {
	return a.controller.ShowAccountSelector()
}

func (a *App) SelectAccount(id string) (accounts.Account, error) {
	return a.controller.SelectAccount(id)
}

func (a *App) AddNewAccount() error {
	return a.controller.AddNewAccount()
}

func (a *App) SaveAccount(acct accounts.Account) (accounts.Account, error) {
	return a.controller.SaveAccount(acct)
}

func (a *App) RemoveAccount(id string) error {
	return a.controller.RemoveAccount(id)
}

func (a *App) ListAccounts() ([]accounts.Account, error) {
	return a.controller.ListAccounts()
}

// Updates

func (a *App) CheckForUpdates() error {
	return a.controller.CheckForUpdates(a.ctx)
}

func (a *App) InstallUpdate() error {
	return a.controller.InstallUpdate(a.ctx)
}

func (a *App) UpdateState() update.State {
	return a.controller.UpdateState()
}
