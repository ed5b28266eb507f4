package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	sessionPathKey = "session.path"
	stateDirName   = ".tokenchat"
	sessionFile    = "session.toml"
	fileMode       = 0o600
	dirMode        = 0o700
)

// Store persists the profile as a TOML file.
type Store struct {
	path string
}

// NewStore resolves the profile path from cfg, defaulting to
// ~/.tokenchat/session.toml.
func NewStore(cfg *viper.Viper) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	cfg.SetDefault(sessionPathKey, filepath.Join(homeDir, stateDirName, sessionFile))

	path := cfg.GetString(sessionPathKey)
	if path == "" {
		return nil, errors.New("session path is empty")
	}
	return &Store{path: path}, nil
}

// Load reads the stored profile. The second return is false when no
// profile exists yet.
func (s *Store) Load() (Profile, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("read session file: %w", err)
	}

	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return Profile{}, false, fmt.Errorf("parse session file: %w", err)
	}
	if p.Username == "" {
		return Profile{}, false, nil
	}
	return p, true, nil
}

// Save writes the profile with owner-only permissions.
func (s *Store) Save(p Profile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.WriteFile(s.path, data, fileMode); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Clear removes the stored profile. Clearing a missing profile is fine.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
