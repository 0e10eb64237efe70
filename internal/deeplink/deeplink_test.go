package deeplink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testScheme = "hopewell-clinic"
	testHost   = "auth-callback"
)

type recordingSurface struct {
	got []Payload
	err error
}

func (s *recordingSurface) DeliverOAuth(p Payload) error {
	s.got = append(s.got, p)
	return s.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBridge(ttl time.Duration) (*Bridge, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBridge(Options{
		Scheme:     testScheme,
		Host:       testHost,
		PendingTTL: ttl,
		Now:        clock.Now,
	})
	return b, clock
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Payload
		wantErr error
	}{
		{
			name: "valid callback",
			raw:  "hopewell-clinic://auth-callback?access_token=abc&refresh_token=xyz",
			want: Payload{AccessToken: "abc", RefreshToken: "xyz"},
		},
		{
			name: "escaped values",
			raw:  "hopewell-clinic://auth-callback?access_token=a%2Bb%3D&refresh_token=x.y",
			want: Payload{AccessToken: "a+b=", RefreshToken: "x.y"},
		},
		{
			name: "trailing slash host",
			raw:  "hopewell-clinic://auth-callback/?access_token=abc&refresh_token=xyz",
			want: Payload{AccessToken: "abc", RefreshToken: "xyz"},
		},
		{name: "foreign scheme", raw: "https://auth-callback?access_token=abc&refresh_token=xyz", wantErr: ErrForeignScheme},
		{name: "other host", raw: "hopewell-clinic://settings?access_token=abc&refresh_token=xyz", wantErr: ErrNotCallback},
		{name: "no query", raw: "hopewell-clinic://auth-callback", wantErr: ErrMissingToken},
		{name: "missing refresh", raw: "hopewell-clinic://auth-callback?access_token=abc", wantErr: ErrMissingToken},
		{name: "empty access", raw: "hopewell-clinic://auth-callback?access_token=&refresh_token=xyz", wantErr: ErrMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, testScheme, testHost)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_MalformedURL(t *testing.T) {
	_, err := Parse("hopewell-clinic://auth-callback:badport?access_token=a&refresh_token=b", testScheme, testHost)
	assert.Error(t, err)
}

func TestHandle_DeliversOnce(t *testing.T) {
	b, _ := newTestBridge(0)
	s := &recordingSurface{}
	b.Attach(s)

	b.Handle("hopewell-clinic://auth-callback?access_token=abc&refresh_token=xyz")

	assert.Equal(t, []Payload{{AccessToken: "abc", RefreshToken: "xyz"}}, s.got)
}

func TestHandle_MalformedInputNeverDelivers(t *testing.T) {
	inputs := []string{
		"",
		"https://host/about",
		"other-app://auth-callback?access_token=abc&refresh_token=xyz",
		"hopewell-clinic://auth-callback",
		"hopewell-clinic://auth-callback?access_token=abc",
		"hopewell-clinic://auth-callback?refresh_token=xyz",
		"hopewell-clinic://elsewhere?access_token=abc&refresh_token=xyz",
		"hopewell-clinic://auth-callback:badport?access_token=a&refresh_token=b",
		"hopewell-clinic://%zz",
	}
	b, _ := newTestBridge(time.Minute)
	s := &recordingSurface{}
	b.Attach(s)

	for _, in := range inputs {
		assert.NotPanics(t, func() { b.Handle(in) }, "input %q", in)
	}
	assert.Empty(t, s.got)
	assert.False(t, b.HasPending())
}

func TestHandle_NoSurfaceWithoutTTLDrops(t *testing.T) {
	b, _ := newTestBridge(0)

	b.Handle("hopewell-clinic://auth-callback?access_token=abc&refresh_token=xyz")
	assert.False(t, b.HasPending())

	s := &recordingSurface{}
	b.Attach(s)
	assert.Empty(t, s.got)
}

func TestHandle_PendingFlushedOnAttach(t *testing.T) {
	b, clock := newTestBridge(30 * time.Second)

	b.Handle("hopewell-clinic://auth-callback?access_token=abc&refresh_token=xyz")
	require.True(t, b.HasPending())

	clock.Advance(10 * time.Second)
	s := &recordingSurface{}
	b.Attach(s)

	assert.Equal(t, []Payload{{AccessToken: "abc", RefreshToken: "xyz"}}, s.got)
	assert.False(t, b.HasPending())

	// A later re-attach must not deliver the same payload again.
	b.Detach()
	b.Attach(s)
	assert.Len(t, s.got, 1)
}

func TestHandle_PendingExpires(t *testing.T) {
	b, clock := newTestBridge(30 * time.Second)

	b.Handle("hopewell-clinic://auth-callback?access_token=abc&refresh_token=xyz")
	clock.Advance(31 * time.Second)

	s := &recordingSurface{}
	b.Attach(s)
	assert.Empty(t, s.got)
	assert.False(t, b.HasPending())
}

func TestHandle_NewestPendingWins(t *testing.T) {
	b, _ := newTestBridge(time.Minute)

	b.Handle("hopewell-clinic://auth-callback?access_token=old&refresh_token=old")
	b.Handle("hopewell-clinic://auth-callback?access_token=new&refresh_token=new")

	s := &recordingSurface{}
	b.Attach(s)
	assert.Equal(t, []Payload{{AccessToken: "new", RefreshToken: "new"}}, s.got)
}

func TestHandle_DeliveryErrorIsNotRetried(t *testing.T) {
	b, _ := newTestBridge(time.Minute)
	s := &recordingSurface{err: errors.New("surface closed")}
	b.Attach(s)

	b.Handle("hopewell-clinic://auth-callback?access_token=abc&refresh_token=xyz")

	assert.Len(t, s.got, 1)
	assert.False(t, b.HasPending())
}

func TestFindInArgs(t *testing.T) {
	args := []string{"/usr/bin/hopewell", "--flag", "HOPEWELL-CLINIC://auth-callback?access_token=a&refresh_token=b", "hopewell-clinic://other"}

	got, ok := FindInArgs(args, testScheme)
	assert.True(t, ok)
	assert.Equal(t, args[2], got)

	_, ok = FindInArgs([]string{"/usr/bin/hopewell"}, testScheme)
	assert.False(t, ok)
}

func TestHasScheme(t *testing.T) {
	assert.True(t, HasScheme("hopewell-clinic://x", testScheme))
	assert.False(t, HasScheme("hopewell-clinic:x", testScheme))
	assert.False(t, HasScheme("hopewell", testScheme))
	assert.False(t, HasScheme("hopewell-clinicx://x", testScheme))
}
