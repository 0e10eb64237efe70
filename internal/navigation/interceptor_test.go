package navigation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hopewell-clinic/hopewell-desktop/internal/routes"
)

type recordingOpener struct {
	opened []string
	err    error
}

func (o *recordingOpener) OpenExternal(url string) error {
	o.opened = append(o.opened, url)
	return o.err
}

func newTestInterceptor(opener Opener) *Interceptor {
	c := routes.NewClassifier("/", "/about", "/blog")
	return NewInterceptor(c, opener, nil)
}

func TestOnWillNavigate_ExternalCancelsAndOpens(t *testing.T) {
	o := &recordingOpener{}
	i := newTestInterceptor(o)

	cancel := i.OnWillNavigate("https://host/about")

	assert.True(t, cancel)
	assert.Equal(t, []string{"https://host/about"}, o.opened)
}

func TestOnWillNavigate_InlineProceeds(t *testing.T) {
	o := &recordingOpener{}
	i := newTestInterceptor(o)

	cancel := i.OnWillNavigate("https://host/dashboard")

	assert.False(t, cancel)
	assert.Empty(t, o.opened)
}

func TestOnNewWindow(t *testing.T) {
	o := &recordingOpener{}
	i := newTestInterceptor(o)

	assert.Equal(t, DenyOpenExternal, i.OnNewWindow("https://host/blog/post-1"))
	assert.Equal(t, AllowInline, i.OnNewWindow("https://host/blogger"))
	assert.Equal(t, []string{"https://host/blog/post-1"}, o.opened)
}

func TestInterceptionPointsAgree(t *testing.T) {
	urls := []string{
		"https://host/",
		"https://host/about",
		"https://host/about/team",
		"https://host/dashboard",
		"https://host/blogger",
		"::not a url::",
	}
	for _, u := range urls {
		i := newTestInterceptor(&recordingOpener{})
		cancel := i.OnWillNavigate(u)
		action := i.OnNewWindow(u)
		assert.Equal(t, cancel, action == DenyOpenExternal, "interception points disagree on %q", u)
	}
}

func TestOpenerFailureIsSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	o := &recordingOpener{err: errors.New("no browser")}
	i := NewInterceptor(routes.NewClassifier("/about"), o, zap.New(core))

	assert.NotPanics(t, func() {
		assert.True(t, i.OnWillNavigate("https://host/about"), "navigation stays cancelled")
	})
	assert.Equal(t, uint64(1), i.Stats().OpenFailures)
	assert.Equal(t, 1, logs.FilterMessage("failed to open external URL").Len())
}

func TestNilOpener(t *testing.T) {
	i := NewInterceptor(routes.NewClassifier("/about"), nil, nil)
	assert.Equal(t, DenyOpenExternal, i.OnNewWindow("https://host/about"))
	assert.False(t, i.OpenExternal("https://example.com"))
}

func TestOpenExternal(t *testing.T) {
	o := &recordingOpener{}
	i := newTestInterceptor(o)

	assert.True(t, i.OpenExternal("https://host/dashboard"), "explicit opens skip classification")
	assert.Equal(t, []string{"https://host/dashboard"}, o.opened)
}

func TestStats(t *testing.T) {
	i := newTestInterceptor(&recordingOpener{})
	i.OnWillNavigate("https://host/dashboard")
	i.OnWillNavigate("https://host/about")
	i.OnNewWindow("https://host/auth")

	assert.Equal(t, Stats{Inline: 2, External: 1}, i.Stats())
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "allow", AllowInline.String())
	assert.Equal(t, "deny", DenyOpenExternal.String())
}
