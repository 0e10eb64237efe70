package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
)

const defaultAPIBase = "https://api.github.com"

// ReleaseOptions configures a ReleaseService.
type ReleaseOptions struct {
	Owner string
	Repo  string
	// APIBase overrides https://api.github.com.
	APIBase string
	// DownloadDir receives downloaded artifacts. Defaults to os.TempDir().
	DownloadDir string
	// Executable returns the path of the binary to replace. Defaults to
	// os.Executable.
	Executable func() (string, error)
	GOOS       string
	GOARCH     string
	UserAgent  string
	Logger     *zap.Logger
}

// ReleaseService implements Service against a GitHub "latest release"
// endpoint. The release must carry a raw executable asset whose name
// contains both GOOS and GOARCH, e.g. hopewell-desktop_linux_amd64.
type ReleaseService struct {
	client     *retryablehttp.Client
	apiBase    string
	owner      string
	repo       string
	dir        string
	executable func() (string, error)
	goos       string
	goarch     string
	userAgent  string
	log        *zap.Logger
}

var _ Service = (*ReleaseService)(nil)

// NewReleaseService creates a feed client with retries.
func NewReleaseService(opts ReleaseOptions) *ReleaseService {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.Logger = nil

	s := &ReleaseService{
		client:     client,
		apiBase:    strings.TrimRight(opts.APIBase, "/"),
		owner:      opts.Owner,
		repo:       opts.Repo,
		dir:        opts.DownloadDir,
		executable: opts.Executable,
		goos:       opts.GOOS,
		goarch:     opts.GOARCH,
		userAgent:  opts.UserAgent,
		log:        logging.OrNop(opts.Logger).Named("release"),
	}
	if s.apiBase == "" {
		s.apiBase = defaultAPIBase
	}
	if s.dir == "" {
		s.dir = os.TempDir()
	}
	if s.executable == nil {
		s.executable = os.Executable
	}
	if s.goos == "" {
		s.goos = runtime.GOOS
	}
	if s.goarch == "" {
		s.goarch = runtime.GOARCH
	}
	if s.userAgent == "" {
		s.userAgent = "hopewell-desktop"
	}
	return s
}

// SetRetryMax adjusts the retry budget; tests use 0.
func (s *ReleaseService) SetRetryMax(n int) {
	s.client.RetryMax = n
}

type githubRelease struct {
	TagName    string        `json:"tag_name"`
	Body       string        `json:"body"`
	Draft      bool          `json:"draft"`
	Prerelease bool          `json:"prerelease"`
	Assets     []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
	Digest             string `json:"digest"`
}

// Check fetches the latest release and compares it with current.
func (s *ReleaseService) Check(ctx context.Context, current string) (Release, bool, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", s.apiBase, s.owner, s.repo)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Release{}, false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Release{}, false, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No published release yet.
		return Release{Version: current}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Release{}, false, fmt.Errorf("release feed returned %s", resp.Status)
	}

	var gr githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return Release{}, false, fmt.Errorf("failed to decode release: %w", err)
	}
	if gr.Draft || gr.Prerelease || CompareVersions(current, gr.TagName) >= 0 {
		return Release{Version: strings.TrimPrefix(gr.TagName, "v")}, false, nil
	}

	asset, ok := s.pickAsset(gr.Assets)
	if !ok {
		return Release{}, false, fmt.Errorf("release %s has no asset for %s/%s", gr.TagName, s.goos, s.goarch)
	}
	return Release{
		Version:  strings.TrimPrefix(gr.TagName, "v"),
		URL:      asset.BrowserDownloadURL,
		Notes:    gr.Body,
		Size:     asset.Size,
		Checksum: asset.Digest,
	}, true, nil
}

func (s *ReleaseService) pickAsset(assets []githubAsset) (githubAsset, bool) {
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		if strings.Contains(name, s.goos) && strings.Contains(name, s.goarch) && !strings.HasSuffix(name, ".sha256") {
			return a, true
		}
	}
	return githubAsset{}, false
}

// Download streams the asset to DownloadDir, reporting percent of Size.
func (s *ReleaseService) Download(ctx context.Context, rel Release, progress func(float64)) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rel.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download update: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("update download returned %s", resp.Status)
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.dir, "hopewell-update-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	path := f.Name()

	total := rel.Size
	if total <= 0 {
		total = resp.ContentLength
	}
	hash := sha256.New()
	pw := &progressWriter{total: total, report: progress}
	_, copyErr := io.Copy(io.MultiWriter(f, hash, pw), resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return "", fmt.Errorf("failed to write update: %w", copyErr)
		}
		return "", fmt.Errorf("failed to write update: %w", closeErr)
	}

	if want, ok := strings.CutPrefix(rel.Checksum, "sha256:"); ok {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(got, want) {
			_ = os.Remove(path)
			return "", fmt.Errorf("update checksum mismatch: got %s, want %s", got, want)
		}
	}

	s.log.Info("update downloaded", zap.String("version", rel.Version), zap.Int64("bytes", pw.written))
	return path, nil
}

// Install swaps the running executable for artifact. The previous binary is
// kept as <exe>.old until the next install and restored if the swap fails.
func (s *ReleaseService) Install(ctx context.Context, rel Release, artifact string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exe, err := s.executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	if err := os.Chmod(artifact, 0755); err != nil {
		return fmt.Errorf("failed to mark update executable: %w", err)
	}

	backup := exe + ".old"
	_ = os.Remove(backup)
	if err := os.Rename(exe, backup); err != nil {
		return fmt.Errorf("failed to move current executable aside: %w", err)
	}
	if err := moveFile(artifact, exe); err != nil {
		if rerr := os.Rename(backup, exe); rerr != nil {
			s.log.Error("failed to restore previous executable", zap.Error(rerr))
		}
		return fmt.Errorf("failed to install update: %w", err)
	}

	s.log.Info("update installed", zap.String("version", rel.Version), zap.String("path", exe))
	return nil
}

// moveFile renames src to dst, copying when they sit on different volumes.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

type progressWriter struct {
	total   int64
	written int64
	report  func(float64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.report != nil && w.total > 0 {
		w.report(float64(w.written) * 100 / float64(w.total))
	}
	return len(p), nil
}
