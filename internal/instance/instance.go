// Package instance keeps a single shell process per user. The first process
// takes an exclusive file lock and listens on a local socket; later launches
// forward their arguments over that socket and exit without opening a window.
// Only the primary may touch the persistent browsing session.
package instance

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
)

// ErrNotPrimary is returned by Acquire when another process already holds
// the lock. The caller must exit without creating a window.
var ErrNotPrimary = errors.New("another instance is already running")

var errLocked = errors.New("lock held by another process")

const (
	defaultName        = "hopewell"
	activationBacklog  = 8
	ioTimeout          = 2 * time.Second
	forwardAttempts    = 5
	forwardRetryDelay  = 100 * time.Millisecond
	activationAckReply = "ok"
	lockPollInterval   = 50 * time.Millisecond
)

// Activation is what a secondary launch sends to the primary.
type Activation struct {
	ID         string    `json:"id"`
	Args       []string  `json:"args"`
	WorkingDir string    `json:"workingDir,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

// Options configures Acquire.
type Options struct {
	// Dir holds the lock file and the activation socket.
	Dir string
	// Name is the base name of both files. Defaults to "hopewell".
	Name string
	// Args is forwarded to the primary when this process is not primary.
	Args       []string
	WorkingDir string
	// Wait keeps retrying the lock for this long before forwarding. A
	// process relaunched by the updater uses it to outlive its predecessor.
	Wait   time.Duration
	Logger *zap.Logger
}

func (o Options) lockPath() string   { return filepath.Join(o.Dir, o.name()+".lock") }
func (o Options) socketPath() string { return filepath.Join(o.Dir, o.name()+".sock") }

func (o Options) name() string {
	if o.Name == "" {
		return defaultName
	}
	return o.Name
}

// Primary is held by the process that owns the single-instance lock.
type Primary struct {
	release     func() error
	listener    net.Listener
	socketPath  string
	activations chan Activation
	log         *zap.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Acquire tries to become the primary instance. When another process holds
// the lock, opts.Args are forwarded to it and the returned error satisfies
// errors.Is(err, ErrNotPrimary), even if forwarding itself failed.
func Acquire(opts Options) (*Primary, error) {
	log := logging.OrNop(opts.Logger).Named("instance")

	if err := os.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create instance directory: %w", err)
	}

	release, err := waitLock(opts.lockPath(), opts.Wait)
	if errors.Is(err, errLocked) {
		if ferr := Forward(opts); ferr != nil {
			log.Warn("failed to forward arguments to primary instance", zap.Error(ferr))
			return nil, fmt.Errorf("%w (forward failed: %v)", ErrNotPrimary, ferr)
		}
		log.Info("forwarded arguments to primary instance", zap.Int("args", len(opts.Args)))
		return nil, ErrNotPrimary
	}
	if err != nil {
		return nil, err
	}

	// We hold the lock, so any socket left on disk belongs to a dead process.
	sock := opts.socketPath()
	_ = os.Remove(sock)
	ln, err := net.Listen("unix", sock)
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("failed to listen for activations: %w", err)
	}

	p := &Primary{
		release:     release,
		listener:    ln,
		socketPath:  sock,
		activations: make(chan Activation, activationBacklog),
		log:         log,
		done:        make(chan struct{}),
	}
	p.wg.Add(1)
	go p.acceptLoop()

	log.Info("acquired single-instance lock", zap.String("socket", sock))
	return p, nil
}

func waitLock(path string, wait time.Duration) (func() error, error) {
	deadline := time.Now().Add(wait)
	for {
		release, err := tryLock(path)
		if !errors.Is(err, errLocked) || !time.Now().Before(deadline) {
			return release, err
		}
		time.Sleep(lockPollInterval)
	}
}

// releaser unlocks and closes f on its first call. Later calls return nil.
func releaser(f *os.File, unlock func() error) func() error {
	var once sync.Once
	return func() (err error) {
		once.Do(func() {
			if uerr := unlock(); uerr != nil {
				err = fmt.Errorf("failed to release lock: %w", uerr)
			}
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close lock file: %w", cerr)
			}
		})
		return err
	}
}

// Activations delivers second-instance launches in arrival order. The
// channel is closed by Close.
func (p *Primary) Activations() <-chan Activation {
	return p.activations
}

// Close stops accepting activations and releases the lock.
func (p *Primary) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.listener.Close()
		p.wg.Wait()
		close(p.activations)
		_ = os.Remove(p.socketPath)
		p.closeErr = p.release()
	})
	return p.closeErr
}

func (p *Primary) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				p.log.Warn("activation listener closed unexpectedly")
				return
			}
			p.log.Warn("activation accept failed", zap.Error(err))
			continue
		}
		p.handleConn(conn)
	}
}

// handleConn reads one activation per connection and acknowledges it once
// it is queued.
func (p *Primary) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	var act Activation
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&act); err != nil {
		p.log.Warn("discarding malformed activation", zap.Error(err))
		return
	}

	select {
	case p.activations <- act:
	case <-p.done:
		return
	}
	_, _ = fmt.Fprintln(conn, activationAckReply)
}

// Forward sends opts.Args to the primary's socket and waits for the
// acknowledgement. The primary may be between taking the lock and
// listening, so the dial is retried briefly.
func Forward(opts Options) error {
	wd := opts.WorkingDir
	if wd == "" {
		wd, _ = os.Getwd()
	}
	act := Activation{
		ID:         uuid.NewString(),
		Args:       opts.Args,
		WorkingDir: wd,
		SentAt:     time.Now().UTC(),
	}

	var conn net.Conn
	var err error
	for attempt := 0; attempt < forwardAttempts; attempt++ {
		conn, err = net.DialTimeout("unix", opts.socketPath(), ioTimeout)
		if err == nil {
			break
		}
		time.Sleep(forwardRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("failed to reach primary instance: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	if err := json.NewEncoder(conn).Encode(act); err != nil {
		return fmt.Errorf("failed to send activation: %w", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("primary did not acknowledge activation: %w", err)
	}
	if reply != activationAckReply+"\n" {
		return fmt.Errorf("unexpected activation reply %q", reply)
	}
	return nil
}
