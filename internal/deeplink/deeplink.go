// Package deeplink turns custom-scheme OAuth callbacks into token payloads
// for the embedded surface.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
)

var (
	// ErrForeignScheme means the URL does not use the registered scheme.
	ErrForeignScheme = errors.New("deep link uses a foreign scheme")
	// ErrNotCallback means the URL targets a host other than the OAuth callback.
	ErrNotCallback = errors.New("deep link is not an auth callback")
	// ErrMissingToken means access_token or refresh_token is absent.
	ErrMissingToken = errors.New("deep link is missing a token")
)

// Payload carries the tokens from an auth callback.
type Payload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Deliverer pushes a payload to the live embedded surface.
type Deliverer interface {
	DeliverOAuth(p Payload) error
}

// HasScheme reports whether raw starts with scheme followed by "://".
func HasScheme(raw, scheme string) bool {
	prefix := scheme + "://"
	return len(raw) >= len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix)
}

// FindInArgs returns the first argument that is a URL in scheme. Second
// instances forward their whole argument vector; this picks the link out.
func FindInArgs(args []string, scheme string) (string, bool) {
	for _, arg := range args {
		if HasScheme(arg, scheme) {
			return arg, true
		}
	}
	return "", false
}

// Parse extracts the token payload from
// scheme://host?access_token=...&refresh_token=...
func Parse(raw, scheme, host string) (Payload, error) {
	if !HasScheme(raw, scheme) {
		return Payload{}, ErrForeignScheme
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to parse deep link: %w", err)
	}
	if !strings.EqualFold(u.Hostname(), host) {
		return Payload{}, fmt.Errorf("%w: host %q", ErrNotCallback, u.Hostname())
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to parse deep link query: %w", err)
	}
	p := Payload{
		AccessToken:  q.Get("access_token"),
		RefreshToken: q.Get("refresh_token"),
	}
	if p.AccessToken == "" || p.RefreshToken == "" {
		return Payload{}, ErrMissingToken
	}
	return p, nil
}

// Options configures a Bridge.
type Options struct {
	Scheme string
	Host   string
	// PendingTTL bounds how long a payload that arrived before the surface
	// was ready is kept. Zero drops such payloads immediately.
	PendingTTL time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

type pending struct {
	payload  Payload
	received time.Time
}

// Bridge routes deep links to the embedded surface. It is not safe for
// concurrent use; the shell drives it from its dispatch loop.
type Bridge struct {
	scheme  string
	host    string
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
	surface Deliverer
	held    *pending
}

// NewBridge creates a bridge with no attached surface.
func NewBridge(opts Options) *Bridge {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		scheme: opts.Scheme,
		host:   opts.Host,
		ttl:    opts.PendingTTL,
		now:    now,
		log:    logging.OrNop(opts.Logger).Named("deeplink"),
	}
}

// Handle processes one deep link. Foreign schemes are ignored, malformed
// links are logged, and nothing is ever returned to the caller.
func (b *Bridge) Handle(raw string) {
	if !HasScheme(raw, b.scheme) {
		return
	}
	p, err := Parse(raw, b.scheme, b.host)
	if err != nil {
		// Tokens are never logged; the URL carries them.
		b.log.Warn("ignoring deep link", zap.Error(err))
		return
	}
	if b.surface == nil {
		b.hold(p)
		return
	}
	b.deliver(b.surface, p)
}

// Attach records that the surface is ready and flushes a held payload
// that has not expired.
func (b *Bridge) Attach(d Deliverer) {
	b.surface = d
	if b.held == nil || d == nil {
		return
	}
	h := b.held
	b.held = nil
	if b.now().Sub(h.received) > b.ttl {
		b.log.Info("dropping expired deep link payload",
			zap.Duration("age", b.now().Sub(h.received)))
		return
	}
	b.deliver(d, h.payload)
}

// Detach records that the surface is gone.
func (b *Bridge) Detach() {
	b.surface = nil
}

// HasPending reports whether a payload is waiting for a surface.
func (b *Bridge) HasPending() bool {
	return b.held != nil
}

func (b *Bridge) hold(p Payload) {
	if b.ttl <= 0 {
		b.log.Warn("no embedded surface, dropping deep link payload")
		return
	}
	if b.held != nil {
		b.log.Info("replacing pending deep link payload")
	}
	b.held = &pending{payload: p, received: b.now()}
}

func (b *Bridge) deliver(d Deliverer, p Payload) {
	if err := d.DeliverOAuth(p); err != nil {
		b.log.Warn("failed to deliver deep link payload", zap.Error(err))
		return
	}
	b.log.Info("delivered oauth callback to embedded surface")
}
