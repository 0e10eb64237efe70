package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CompareVersions Tests
// =============================================================================
// The release feed and the orchestrator both rely on this ordering to decide
// whether an update is available.

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		v1   string
		v2   string
		want int
	}{
		// Equal versions
		{"equal simple", "1.0.0", "1.0.0", 0},
		{"equal with v prefix", "v1.0.0", "1.0.0", 0},
		{"equal both v prefix", "v2.1.0", "v2.1.0", 0},

		// v1 < v2 (update available)
		{"patch update", "1.0.0", "1.0.1", -1},
		{"minor update", "1.0.0", "1.1.0", -1},
		{"major update", "1.0.0", "2.0.0", -1},
		{"minor with v prefix", "v1.2.0", "v1.3.0", -1},

		// v1 > v2 (downgrade/rollback)
		{"patch downgrade", "1.0.1", "1.0.0", 1},
		{"complex downgrade", "2.1.0", "1.9.9", 1},

		// Partial versions are padded with zeros
		{"short v1", "1.0", "1.0.0", 0},
		{"short both", "1", "1.0.0", 0},
		{"short update needed", "1.0", "1.0.1", -1},

		// Suffixes are ignored
		{"dev build", "0.1.0-dev", "0.1.0", 0},
		{"dev build behind", "0.1.0-dev", "0.2.0", -1},
		{"build metadata", "1.2.3+abc", "1.2.3", 0},

		// Edge cases
		{"empty vs zero", "", "0.0.0", 0},
		{"empty vs release", "", "1.0.0", -1},
		{"high numbers", "10.20.30", "10.20.31", -1},
		{"numeric not lexical", "1.10.0", "1.9.0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareVersions(tt.v1, tt.v2)
			if got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.want)
			}
		})
	}
}

// TestCompareVersions_Symmetry verifies the comparison is antisymmetric.
func TestCompareVersions_Symmetry(t *testing.T) {
	pairs := [][2]string{
		{"1.0.0", "2.0.0"},
		{"1.2.3", "1.2.4"},
		{"v0.9.0", "v1.0.0"},
	}

	for _, pair := range pairs {
		forward := CompareVersions(pair[0], pair[1])
		backward := CompareVersions(pair[1], pair[0])
		if forward != -backward {
			t.Errorf("CompareVersions(%q, %q) = %d but reverse = %d", pair[0], pair[1], forward, backward)
		}
	}
}

// =============================================================================
// ReleaseService Tests
// =============================================================================

type feed struct {
	tag      string
	draft    bool
	asset    []byte
	digest   string
	status   int
	requests []string
}

func (f *feed) server(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests = append(f.requests, r.URL.Path)
		switch {
		case r.URL.Path == "/repos/hopewell-clinic/hopewell-desktop/releases/latest":
			if f.status != 0 {
				w.WriteHeader(f.status)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"tag_name": f.tag,
				"draft":    f.draft,
				"body":     "release notes",
				"assets": []map[string]any{
					{"name": "hopewell-desktop_windows_amd64.exe", "browser_download_url": srv.URL + "/dl/windows", "size": 3},
					{"name": "hopewell-desktop_linux_amd64", "browser_download_url": srv.URL + "/dl/linux", "size": len(f.asset), "digest": f.digest},
				},
			})
		case strings.HasPrefix(r.URL.Path, "/dl/"):
			_, _ = w.Write(f.asset)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, srv *httptest.Server, exe string) *ReleaseService {
	t.Helper()
	s := NewReleaseService(ReleaseOptions{
		Owner:       "hopewell-clinic",
		Repo:        "hopewell-desktop",
		APIBase:     srv.URL,
		DownloadDir: t.TempDir(),
		Executable:  func() (string, error) { return exe, nil },
		GOOS:        "linux",
		GOARCH:      "amd64",
	})
	s.SetRetryMax(0)
	return s
}

func sha(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func TestReleaseService_CheckNewer(t *testing.T) {
	payload := []byte("new-binary")
	f := &feed{tag: "v1.2.0", asset: payload, digest: sha(payload)}
	srv := f.server(t)
	s := newTestService(t, srv, "")

	rel, ok, err := s.Check(context.Background(), "1.1.0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.2.0", rel.Version)
	assert.Equal(t, srv.URL+"/dl/linux", rel.URL)
	assert.Equal(t, int64(len(payload)), rel.Size)
	assert.Equal(t, "release notes", rel.Notes)
}

func TestReleaseService_CheckUpToDate(t *testing.T) {
	for _, current := range []string{"1.2.0", "v1.2.0", "1.3.0"} {
		f := &feed{tag: "v1.2.0"}
		s := newTestService(t, f.server(t), "")

		_, ok, err := s.Check(context.Background(), current)
		require.NoError(t, err)
		assert.False(t, ok, "current %s", current)
	}
}

func TestReleaseService_CheckSkipsDrafts(t *testing.T) {
	f := &feed{tag: "v9.0.0", draft: true}
	s := newTestService(t, f.server(t), "")

	_, ok, err := s.Check(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseService_CheckNoReleaseYet(t *testing.T) {
	f := &feed{status: http.StatusNotFound}
	s := newTestService(t, f.server(t), "")

	_, ok, err := s.Check(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseService_CheckServerError(t *testing.T) {
	f := &feed{status: http.StatusInternalServerError}
	s := newTestService(t, f.server(t), "")

	_, _, err := s.Check(context.Background(), "1.0.0")
	assert.Error(t, err)
}

func TestReleaseService_CheckNoMatchingAsset(t *testing.T) {
	f := &feed{tag: "v2.0.0"}
	srv := f.server(t)
	s := newTestService(t, srv, "")
	s.goarch = "riscv64"

	_, _, err := s.Check(context.Background(), "1.0.0")
	assert.ErrorContains(t, err, "no asset")
}

func TestReleaseService_DownloadReportsProgressAndVerifies(t *testing.T) {
	payload := []byte(strings.Repeat("x", 4096))
	f := &feed{tag: "v2.0.0", asset: payload, digest: sha(payload)}
	s := newTestService(t, f.server(t), "")

	rel, ok, err := s.Check(context.Background(), "1.0.0")
	require.NoError(t, err)
	require.True(t, ok)

	var seen []float64
	path, err := s.Download(context.Background(), rel, func(p float64) { seen = append(seen, p) })
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	require.NotEmpty(t, seen)
	assert.InDelta(t, 100, seen[len(seen)-1], 0.001)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}

func TestReleaseService_DownloadChecksumMismatch(t *testing.T) {
	payload := []byte("tampered")
	f := &feed{tag: "v2.0.0", asset: payload, digest: sha([]byte("original"))}
	s := newTestService(t, f.server(t), "")

	rel, _, err := s.Check(context.Background(), "1.0.0")
	require.NoError(t, err)

	_, err = s.Download(context.Background(), rel, nil)
	assert.ErrorContains(t, err, "checksum mismatch")

	entries, _ := os.ReadDir(s.dir)
	assert.Empty(t, entries, "partial download should be removed")
}

func TestReleaseService_Install(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "hopewell-desktop")
	require.NoError(t, os.WriteFile(exe, []byte("old"), 0755))
	artifact := filepath.Join(dir, "download")
	require.NoError(t, os.WriteFile(artifact, []byte("new"), 0600))

	f := &feed{}
	s := newTestService(t, f.server(t), exe)

	require.NoError(t, s.Install(context.Background(), Release{Version: "2.0.0"}, artifact))

	data, err := os.ReadFile(exe)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	backup, err := os.ReadFile(exe + ".old")
	require.NoError(t, err)
	assert.Equal(t, "old", string(backup))

	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseService_InstallMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "hopewell-desktop")
	require.NoError(t, os.WriteFile(exe, []byte("old"), 0755))

	f := &feed{}
	s := newTestService(t, f.server(t), exe)

	err := s.Install(context.Background(), Release{Version: "2.0.0"}, filepath.Join(dir, "missing"))
	assert.Error(t, err)

	data, err := os.ReadFile(exe)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "current executable must be untouched")
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PolicyConfirm, ParsePolicy("confirm"))
	assert.Equal(t, PolicyAuto, ParsePolicy("auto"))
	assert.Equal(t, PolicyAuto, ParsePolicy(""))
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{State{Phase: Idle}, "idle"},
		{State{Phase: Available, Version: "1.2.0"}, "available(1.2.0)"},
		{State{Phase: Downloading, Percent: 42.4}, "downloading(42%)"},
		{State{Phase: Failed, Reason: "boom"}, "failed(boom)"},
		{State{Phase: Phase(99)}, "phase(99)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String(), fmt.Sprintf("%#v", tt.state))
	}
}
