// Package accounts persists the accounts offered by the account selector and
// remembers which one was chosen last.
package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hopewell-clinic/hopewell-desktop/internal/logging"
)

// FileName is the store's file name inside the shell's data directory.
const FileName = "accounts.json"

// ErrNotFound is returned when no account has the requested ID.
var ErrNotFound = errors.New("account not found")

// Account is one saved identity. Email is the natural key.
type Account struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	Email       string    `json:"email"`
	AddedAt     time.Time `json:"addedAt"`
}

// Label is what the selector shows for the account.
func (a Account) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Email
}

type storeFile struct {
	Accounts []Account `json:"accounts"`
	Selected string    `json:"selected,omitempty"`
}

// Store is a JSON file guarded by an exclusive OS lock, so several shell
// processes (a primary and a relaunching updater) never interleave writes.
type Store struct {
	path  string
	log   *zap.Logger
	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// NewStore opens the store at path. The file is created on first write.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:  path,
		log:   logging.OrNop(logger).Named("accounts"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// List returns all saved accounts in insertion order.
func (s *Store) List() ([]Account, error) {
	var out []Account
	err := s.withFileLock(false, func(f *storeFile) error {
		out = append([]Account(nil), f.Accounts...)
		return nil
	})
	return out, err
}

// Get returns the account with id.
func (s *Store) Get(id string) (Account, error) {
	var out Account
	err := s.withFileLock(false, func(f *storeFile) error {
		i := f.index(id)
		if i < 0 {
			return ErrNotFound
		}
		out = f.Accounts[i]
		return nil
	})
	return out, err
}

// Save inserts a or updates the account with the same email. The stored
// record, with its ID and AddedAt, is returned.
func (s *Store) Save(a Account) (Account, error) {
	a.Email = strings.TrimSpace(a.Email)
	if a.Email == "" {
		return Account{}, errors.New("account email is required")
	}

	var out Account
	err := s.withFileLock(true, func(f *storeFile) error {
		for i, existing := range f.Accounts {
			if strings.EqualFold(existing.Email, a.Email) {
				if a.DisplayName != "" {
					existing.DisplayName = a.DisplayName
				}
				f.Accounts[i] = existing
				out = existing
				return nil
			}
		}
		a.ID = s.newID()
		a.AddedAt = s.now().UTC()
		f.Accounts = append(f.Accounts, a)
		out = a
		return nil
	})
	return out, err
}

// Remove deletes the account with id and clears it as the selection.
func (s *Store) Remove(id string) error {
	return s.withFileLock(true, func(f *storeFile) error {
		i := f.index(id)
		if i < 0 {
			return ErrNotFound
		}
		f.Accounts = append(f.Accounts[:i], f.Accounts[i+1:]...)
		if f.Selected == id {
			f.Selected = ""
		}
		return nil
	})
}

// Select records id as the chosen account.
func (s *Store) Select(id string) (Account, error) {
	var out Account
	err := s.withFileLock(true, func(f *storeFile) error {
		i := f.index(id)
		if i < 0 {
			return ErrNotFound
		}
		f.Selected = id
		out = f.Accounts[i]
		return nil
	})
	return out, err
}

// ClearSelection forgets the chosen account, as when the user adds a new one.
func (s *Store) ClearSelection() error {
	return s.withFileLock(true, func(f *storeFile) error {
		f.Selected = ""
		return nil
	})
}

// Selected returns the chosen account, if any.
func (s *Store) Selected() (Account, bool, error) {
	var out Account
	var ok bool
	err := s.withFileLock(false, func(f *storeFile) error {
		if i := f.index(f.Selected); i >= 0 && f.Selected != "" {
			out, ok = f.Accounts[i], true
		}
		return nil
	})
	return out, ok, err
}

func (f *storeFile) index(id string) int {
	for i, a := range f.Accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// withFileLock runs fn on the decoded file while holding an exclusive lock.
// When write is set and fn succeeds, the file is rewritten in place.
func (s *Store) withFileLock(write bool, fn func(f *storeFile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create account directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	defer f.Close()

	unlock, err := lockFile(f)
	if err != nil {
		return err
	}
	defer unlock()

	var state storeFile
	if err := json.NewDecoder(f).Decode(&state); err != nil && err != io.EOF {
		// A corrupt store is replaced on the next write.
		s.log.Warn("failed to parse account store, starting empty", zap.Error(err))
		state = storeFile{}
	}

	if err := fn(&state); err != nil {
		return err
	}
	if !write {
		return nil
	}

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate account store: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek account store: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("failed to write account store: %w", err)
	}
	return nil
}
