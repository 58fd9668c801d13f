package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"copilotx-proxy/pkg/models"
)

// Storage persists Credentials to <home>/.copilotx/auth.json: atomic
// temp-file-then-rename write, owner-only (0600) permissions on POSIX.
type Storage struct {
	Path string
}

// NewStorage returns a Storage rooted at the given state directory.
func NewStorage(stateDir string) *Storage {
	return &Storage{Path: filepath.Join(stateDir, "auth.json")}
}

// Load reads credentials from disk. A missing file or unparsable JSON both
// return (nil, nil): "not authenticated" is a logical condition,
// not a filesystem error.
func (s *Storage) Load() (*models.Credentials, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds models.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, nil
	}
	if creds.GrantToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes creds atomically: write to a sibling temp file, then rename
// over the target.
func (s *Storage) Save(creds models.Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".auth-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0o600); err != nil {
			os.Remove(tmpPath)
			return err
		}
	}
	return os.Rename(tmpPath, s.Path)
}

// Delete removes the credentials file. Returns false if it didn't exist.
func (s *Storage) Delete() (bool, error) {
	err := os.Remove(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
