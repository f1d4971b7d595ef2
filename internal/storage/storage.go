// Package storage wraps the remote file stores that receive submission
// uploads. Every backend creates one folder per submission, uploads files
// into it and hands back a link a browser can open.
package storage

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrNotConfigured means the selected backend is missing credentials or
// its target folder/bucket.
var ErrNotConfigured = errors.New("storage not configured")

const (
	BackendDrive = "drive"
	BackendMinIO = "minio"
)

type Folder struct {
	ID   string
	Name string
	Link string
}

// File is one upload. Size may be -1 when unknown.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Object is a stored file and its shareable link.
type Object struct {
	ID   string
	Name string
	Link string
}

type FileStore interface {
	CreateFolder(ctx context.Context, name string) (Folder, error)
	Upload(ctx context.Context, folder Folder, f File) (Object, error)
	// RemoveFolder deletes the folder and everything uploaded into it.
	RemoveFolder(ctx context.Context, folder Folder) error
	// Check verifies the backend is reachable and its root exists.
	Check(ctx context.Context) error
}

// Opener hands out the FileStore for a request.
type Opener interface {
	Open(ctx context.Context) (FileStore, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Drive   DriveConfig
	MinIO   MinIOConfig
}

// Factory builds a FileStore.
type Factory func(ctx context.Context) (FileStore, error)

// NewFactory returns the Factory for cfg.Backend. Unknown backends fall
// back to Google Drive.
func NewFactory(cfg Config) Factory {
	switch cfg.Backend {
	case BackendMinIO:
		return func(ctx context.Context) (FileStore, error) {
			return NewMinIO(ctx, cfg.MinIO)
		}
	default:
		return func(ctx context.Context) (FileStore, error) {
			return NewDrive(ctx, cfg.Drive)
		}
	}
}

// Lazy is the process-wide storage client. The first successful build is
// kept and shared by every later request; failed builds are not cached,
// so a missing configuration is reported on every call.
type Lazy struct {
	mu      sync.Mutex
	factory Factory
	fs      FileStore
}

func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

func (l *Lazy) Open(ctx context.Context) (FileStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fs != nil {
		return l.fs, nil
	}
	fs, err := l.factory(ctx)
	if err != nil {
		return nil, err
	}
	l.fs = fs
	return fs, nil
}
