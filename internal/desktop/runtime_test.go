package desktop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	emits []string
	data  [][]interface{}
	urls  []string
	js    []string
	ops   []windowOp
	state map[windowOp]bool
}

func newTestRuntime() (*Runtime, *recorder) {
	rec := &recorder{state: map[windowOp]bool{}}
	r := NewRuntime(nil)
	r.emit = func(_ context.Context, name string, data ...interface{}) {
		rec.emits = append(rec.emits, name)
		rec.data = append(rec.data, data)
	}
	r.openURL = func(_ context.Context, url string) { rec.urls = append(rec.urls, url) }
	r.execJS = func(_ context.Context, js string) { rec.js = append(rec.js, js) }
	r.windowCall = func(_ context.Context, op windowOp) bool {
		rec.ops = append(rec.ops, op)
		return rec.state[op]
	}
	return r, rec
}

func TestRuntime_DropsCallsBeforeStartup(t *testing.T) {
	r, rec := newTestRuntime()

	r.Emit("oauth-callback", "x")
	r.Navigate("https://example.org")
	r.Minimise()
	assert.False(t, r.IsMaximised())
	assert.Error(t, r.OpenExternal("https://example.org"))

	assert.Empty(t, rec.emits)
	assert.Empty(t, rec.js)
	assert.Empty(t, rec.ops)
	assert.Empty(t, rec.urls)
}

func TestRuntime_ForwardsAfterStartup(t *testing.T) {
	r, rec := newTestRuntime()
	r.Startup(context.Background())

	r.Emit("download-progress", 42.0)
	require.Equal(t, []string{"download-progress"}, rec.emits)
	assert.Equal(t, []interface{}{42.0}, rec.data[0])

	require.NoError(t, r.OpenExternal("https://hopewell.example/about"))
	assert.Equal(t, []string{"https://hopewell.example/about"}, rec.urls)

	rec.state[opIsMaximised] = true
	assert.True(t, r.IsMaximised())
	r.ToggleMaximise()
	r.Unminimise()
	r.Show()
	r.Close()
	assert.Equal(t, []windowOp{opIsMaximised, opToggleMaximise, opUnminimise, opShow, opQuit}, rec.ops)
}

func TestRuntime_SurfaceCommandsQuoteURL(t *testing.T) {
	r, rec := newTestRuntime()
	r.Startup(context.Background())

	r.Navigate(`https://x.example/?q="');alert(1)//`)
	r.Back()
	r.Reload()

	require.Len(t, rec.js, 3)
	assert.Equal(t, `window.hopewellSurface && window.hopewellSurface.navigate("https://x.example/?q=\"');alert(1)//")`, rec.js[0])
	assert.Equal(t, "window.hopewellSurface && window.hopewellSurface.back()", rec.js[1])
	assert.Equal(t, "window.hopewellSurface && window.hopewellSurface.reload()", rec.js[2])
}

func TestRuntime_ShutdownStopsForwarding(t *testing.T) {
	r, rec := newTestRuntime()
	r.Startup(context.Background())
	r.Shutdown(context.Background())

	r.Emit("loading-status", true)
	assert.Empty(t, rec.emits)
}
