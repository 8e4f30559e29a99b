// Package profile keeps compressed snapshots of the persistent browser profile so
// a logged-in session can be backed up and restored.
package profile

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrBrowserRunning = errors.New("browser is running, close it first")
)

const archiveExt = ".tar.gz"

// lock files held by a running browser; restoring them would block the next launch
var skipNames = map[string]bool{
	"SingletonLock":   true,
	"SingletonSocket": true,
	"SingletonCookie": true,
	"lock":            true,
	".parentlock":     true,
	"parent.lock":     true,
}

// Browser reports whether the profile is in use
type Browser interface {
	Running() bool
}

// Manager creates, lists, restores and deletes profile snapshots
type Manager struct {
	profileDir string
	storePath  string
	browser    Browser
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewManager creates a new snapshot manager storing archives under storePath
func NewManager(profileDir, storePath string, browser Browser, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(storePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Manager{
		profileDir: profileDir,
		storePath:  storePath,
		browser:    browser,
		logger:     logger.With(zap.String("component", "profile")),
	}, nil
}

// List returns every snapshot on disk, newest first
func (m *Manager) List() ([]*models.ProfileSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	snapshots := make([]*models.ProfileSnapshot, 0, len(entries))
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), archiveExt)
		if !ok || e.IsDir() || uuid.Validate(id) != nil {
			continue
		}
		snap, err := m.stat(id)
		if err != nil {
			continue
		}
		snapshots = append(snapshots, snap)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Get returns a single snapshot
func (m *Manager) Get(id string) (*models.ProfileSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stat(id)
}

// Create archives the profile directory. The browser must be closed so the
// profile databases are consistent on disk.
func (m *Manager) Create() (*models.ProfileSnapshot, error) {
	if m.browser.Running() {
		return nil, ErrBrowserRunning
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.profileDir); err != nil {
		return nil, fmt.Errorf("profile directory unavailable: %w", err)
	}

	id := uuid.New().String()
	path := m.archivePath(id)
	if err := compressDirectory(m.profileDir, path); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to compress profile: %w", err)
	}

	snap, err := m.stat(id)
	if err != nil {
		return nil, err
	}
	m.logger.Info("profile snapshot created", zap.String("id", id), zap.Int64("bytes", snap.SizeBytes))
	return snap, nil
}

// Restore replaces the profile directory with the contents of a snapshot
func (m *Manager) Restore(id string) error {
	if m.browser.Running() {
		return ErrBrowserRunning
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.stat(id)
	if err != nil {
		return err
	}

	parent := filepath.Dir(filepath.Clean(m.profileDir))
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create profile parent: %w", err)
	}
	staging, err := os.MkdirTemp(parent, ".profile-restore-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := extractDirectory(snap.Path, staging); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("failed to extract snapshot: %w", err)
	}

	if err := os.RemoveAll(m.profileDir); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("failed to clear profile directory: %w", err)
	}
	if err := os.Rename(staging, m.profileDir); err != nil {
		return fmt.Errorf("failed to move restored profile into place: %w", err)
	}

	m.logger.Info("profile snapshot restored", zap.String("id", id))
	return nil
}

// Delete removes a snapshot archive
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.stat(id)
	if err != nil {
		return err
	}
	if err := os.Remove(snap.Path); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	m.logger.Info("profile snapshot deleted", zap.String("id", id))
	return nil
}

func (m *Manager) archivePath(id string) string {
	return filepath.Join(m.storePath, id+archiveExt)
}

func (m *Manager) stat(id string) (*models.ProfileSnapshot, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	path := m.archivePath(id)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.ProfileSnapshot{
		ID:        id,
		CreatedAt: info.ModTime().UTC().Truncate(time.Second),
		SizeBytes: info.Size(),
		Path:      path,
	}, nil
}

// compressDirectory creates a tar.gz archive of a directory
func compressDirectory(source, target string) (err error) {
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	gzWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzWriter)

	walkErr := filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == source {
			return nil
		}
		if skipNames[info.Name()] || !(info.Mode().IsRegular() || info.IsDir()) {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
	if walkErr != nil {
		return walkErr
	}
	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

// extractDirectory extracts a tar.gz archive to a directory, refusing entries
// that would land outside of it
func extractDirectory(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	root := filepath.Clean(target) + string(os.PathSeparator)
	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(targetPath+string(os.PathSeparator), root) {
			return fmt.Errorf("illegal path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return err
			}

			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			if err := outFile.Close(); err != nil {
				return err
			}
		}
	}

	return nil
}
