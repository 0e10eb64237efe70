// Package navigation enforces route decisions at the two points where the
// embedded surface asks to leave its current page: new-window requests and
// in-place navigations.
package navigation

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
	"github.com/hopewell-clinic/hopewell-desktop/internal/routes"
)

// Opener hands a URL to the OS default browser.
type Opener interface {
	OpenExternal(url string) error
}

// Classifier decides where a URL renders.
type Classifier interface {
	Classify(url string) routes.Decision
}

// Action is the answer to a new-window request.
type Action int

const (
	// AllowInline lets the surface create or reuse the inline context.
	AllowInline Action = iota
	// DenyOpenExternal blocks the window; the URL went to the OS browser.
	DenyOpenExternal
)

func (a Action) String() string {
	if a == DenyOpenExternal {
		return "deny"
	}
	return "allow"
}

// Stats counts interception outcomes since startup.
type Stats struct {
	Inline       uint64 `json:"inline"`
	External     uint64 `json:"external"`
	OpenFailures uint64 `json:"openFailures"`
}

// Interceptor applies classifier decisions to navigation attempts.
type Interceptor struct {
	classifier Classifier
	opener     Opener
	log        *zap.Logger

	inline       atomic.Uint64
	external     atomic.Uint64
	openFailures atomic.Uint64
}

// NewInterceptor creates an interceptor.
func NewInterceptor(classifier Classifier, opener Opener, logger *zap.Logger) *Interceptor {
	return &Interceptor{
		classifier: classifier,
		opener:     opener,
		log:        logging.OrNop(logger).Named("navigation"),
	}
}

// OnNewWindow handles a request to open url in a new window.
func (i *Interceptor) OnNewWindow(url string) Action {
	if i.decide(url, "new-window") == routes.External {
		return DenyOpenExternal
	}
	return AllowInline
}

// OnWillNavigate handles an in-place navigation attempt. It returns true when
// the navigation must be cancelled; the current page stays as it is.
func (i *Interceptor) OnWillNavigate(url string) (cancel bool) {
	return i.decide(url, "will-navigate") == routes.External
}

// OpenExternal opens url in the OS browser without classifying it. It
// reports whether the opener succeeded.
func (i *Interceptor) OpenExternal(url string) bool {
	return i.open(url, "open-external")
}

// Stats returns a snapshot of the counters.
func (i *Interceptor) Stats() Stats {
	return Stats{
		Inline:       i.inline.Load(),
		External:     i.external.Load(),
		OpenFailures: i.openFailures.Load(),
	}
}

// decide is shared by both interception points so a URL resolves the same
// way no matter how the navigation was triggered.
func (i *Interceptor) decide(url, source string) routes.Decision {
	d := routes.Inline
	if i.classifier != nil {
		d = i.classifier.Classify(url)
	}
	if d == routes.Inline {
		i.inline.Add(1)
		return d
	}
	i.external.Add(1)
	i.log.Debug("routing navigation to external browser",
		zap.String("url", url),
		zap.String("source", source))
	i.open(url, source)
	return d
}

// open never retries and never restores the cancelled navigation.
func (i *Interceptor) open(url, source string) bool {
	if i.opener == nil {
		i.openFailures.Add(1)
		i.log.Warn("no external opener configured", zap.String("url", url))
		return false
	}
	if err := i.opener.OpenExternal(url); err != nil {
		i.openFailures.Add(1)
		i.log.Warn("failed to open external URL",
			zap.String("url", url),
			zap.String("source", source),
			zap.Error(err))
		return false
	}
	return true
}
