package shell

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/accounts"
	"github.com/hopewell-clinic/hopewell-desktop/internal/navigation"
	"github.com/hopewell-clinic/hopewell-desktop/internal/update"
)

var errNoAccountStore = errors.New("account store not configured")

// Window controls.

func (c *Controller) MinimiseWindow() {
	if c.window != nil {
		c.window.Minimise()
	}
}

// ToggleMaximiseWindow flips the maximised state and tells the titlebar.
func (c *Controller) ToggleMaximiseWindow() {
	if c.window == nil {
		return
	}
	c.window.ToggleMaximise()
	c.emit(SignalWindowMaximized, c.window.IsMaximised())
}

func (c *Controller) CloseWindow() {
	if c.window != nil {
		c.window.Close()
	}
}

func (c *Controller) IsMaximised() bool {
	return c.window != nil && c.window.IsMaximised()
}

// Navigation controls.

func (c *Controller) NavigateBack() {
	if c.surface != nil {
		c.surface.Back()
	}
}

func (c *Controller) NavigateForward() {
	if c.surface != nil {
		c.surface.Forward()
	}
}

func (c *Controller) Reload() {
	if c.surface != nil {
		c.surface.Reload()
	}
}

// NavigateHome loads the configured application URL.
func (c *Controller) NavigateHome() {
	if c.surface != nil {
		c.surface.Navigate(c.cfg.AppURL)
	}
}

// WillNavigate reports whether an in-place navigation to url must be
// cancelled because it was sent to the system browser.
func (c *Controller) WillNavigate(url string) bool {
	return c.nav.OnWillNavigate(url)
}

// NewWindow answers a window.open request with "allow" or "deny".
func (c *Controller) NewWindow(url string) navigation.Action {
	return c.nav.OnNewWindow(url)
}

// OpenExternal sends url to the system browser and reports success.
func (c *Controller) OpenExternal(url string) bool {
	return c.nav.OpenExternal(url)
}

// NavigationStats returns interception counters since startup.
func (c *Controller) NavigationStats() navigation.Stats {
	return c.nav.Stats()
}

// Surface status relayed from the embedded app to the titlebar.

func (c *Controller) ReportLoading(loading bool) {
	c.emit(SignalLoadingStatus, loading)
}

func (c *Controller) ReportURLChanged(url string) {
	c.emit(SignalURLChanged, url)
}

func (c *Controller) ReportLoadError(description string) {
	c.log.Warn("embedded app failed to load", zap.String("error", description))
	c.emit(SignalLoadError, description)
}

// HandshakeResponse signs challenge with the shared secret. It returns nil
// when no secret is configured or signing fails; the page treats nil as an
// unauthenticated shell.
func (c *Controller) HandshakeResponse(challenge string) *string {
	if c.app.Signer == nil {
		c.log.Warn("handshake requested but no secret is configured")
		return nil
	}
	digest, err := c.app.Signer.Respond([]byte(challenge))
	if err != nil {
		c.log.Error("handshake failed", zap.Error(err))
		return nil
	}
	return &digest
}

// AccountSelectorState is sent with SignalAccountSelector.
type AccountSelectorState struct {
	Visible  bool               `json:"visible"`
	Accounts []accounts.Account `json:"accounts,omitempty"`
	Selected string             `json:"selected,omitempty"`
}

// ShowAccountSelector opens the selector with the saved accounts.
func (c *Controller) ShowAccountSelector() error {
	if c.accounts == nil {
		return errNoAccountStore
	}
	list, err := c.accounts.List()
	if err != nil {
		return err
	}
	state := AccountSelectorState{Visible: true, Accounts: list}
	if sel, ok, err := c.accounts.Selected(); err == nil && ok {
		state.Selected = sel.ID
	}
	c.emit(SignalAccountSelector, state)
	return nil
}

// SelectAccount records the choice, closes the selector and brings the main
// window forward.
func (c *Controller) SelectAccount(id string) (accounts.Account, error) {
	if c.accounts == nil {
		return accounts.Account{}, errNoAccountStore
	}
	a, err := c.accounts.Select(id)
	if err != nil {
		return accounts.Account{}, err
	}
	c.log.Info("account selected", zap.String("id", a.ID))
	c.closeAccountSelector()
	return a, nil
}

// AddNewAccount clears the selection so the embedded app shows its sign-in
// page, then closes the selector.
func (c *Controller) AddNewAccount() error {
	if c.accounts == nil {
		return errNoAccountStore
	}
	if err := c.accounts.ClearSelection(); err != nil {
		return err
	}
	c.log.Info("adding new account")
	c.closeAccountSelector()
	return nil
}

// SaveAccount stores a, keyed by email.
func (c *Controller) SaveAccount(a accounts.Account) (accounts.Account, error) {
	if c.accounts == nil {
		return accounts.Account{}, errNoAccountStore
	}
	return c.accounts.Save(a)
}

// RemoveAccount deletes the account with id.
func (c *Controller) RemoveAccount(id string) error {
	if c.accounts == nil {
		return errNoAccountStore
	}
	return c.accounts.Remove(id)
}

// ListAccounts returns the saved accounts.
func (c *Controller) ListAccounts() ([]accounts.Account, error) {
	if c.accounts == nil {
		return nil, errNoAccountStore
	}
	return c.accounts.List()
}

func (c *Controller) closeAccountSelector() {
	c.emit(SignalAccountSelector, AccountSelectorState{Visible: false})
	c.focus()
}

// Updates.

// CheckForUpdates starts an update cycle now.
func (c *Controller) CheckForUpdates(ctx context.Context) error {
	if c.updater == nil {
		return nil
	}
	return c.updater.CheckForUpdates(ctx)
}

// InstallUpdate installs a downloaded update and restarts.
func (c *Controller) InstallUpdate(ctx context.Context) error {
	if c.updater == nil {
		return update.ErrNothingToInstall
	}
	return c.updater.ConfirmInstall(ctx)
}

// UpdateState returns the updater's current state.
func (c *Controller) UpdateState() update.State {
	if c.updater == nil {
		return update.State{Phase: update.Idle}
	}
	return c.updater.State()
}

func (c *Controller) emit(signal string, data any) {
	if c.surface != nil {
		c.surface.Emit(signal, data)
	}
}
