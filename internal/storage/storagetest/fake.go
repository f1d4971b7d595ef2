// Package storagetest provides an in-memory storage.FileStore for tests.
package storagetest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"form-intake/internal/storage"
)

// Uploaded is one file received by a Fake.
type Uploaded struct {
	Folder      storage.Folder
	Name        string
	ContentType string
	Data        []byte
	Link        string
}

// Fake records folders and uploads in memory. The optional hooks let a
// test fail or blank individual operations.
type Fake struct {
	// FailFolder, when non-nil, is returned by CreateFolder.
	FailFolder error
	// FailUpload is consulted before every upload; a non-nil error fails it.
	FailUpload func(name string) error
	// OmitLink makes the named upload succeed with an empty link.
	OmitLink func(name string) bool

	mu      sync.Mutex
	folders []storage.Folder
	uploads []Uploaded
	removed []storage.Folder
	seq     int
}

func New() *Fake {
	return &Fake{}
}

// Open makes a Fake usable wherever a storage.Opener is expected.
func (f *Fake) Open(ctx context.Context) (storage.FileStore, error) {
	return f, nil
}

func (f *Fake) CreateFolder(ctx context.Context, name string) (storage.Folder, error) {
	if f.FailFolder != nil {
		return storage.Folder{}, f.FailFolder
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	folder := storage.Folder{
		ID:   fmt.Sprintf("folder-%d", f.seq),
		Name: name,
		Link: fmt.Sprintf("https://files.test/folders/%d", f.seq),
	}
	f.folders = append(f.folders, folder)
	return folder, nil
}

func (f *Fake) Upload(ctx context.Context, folder storage.Folder, file storage.File) (storage.Object, error) {
	if f.FailUpload != nil {
		if err := f.FailUpload(file.Name); err != nil {
			return storage.Object{}, err
		}
	}

	data, err := io.ReadAll(file.Body)
	if err != nil {
		return storage.Object{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	id := fmt.Sprintf("file-%d", f.seq)
	link := "https://files.test/" + id
	if f.OmitLink != nil && f.OmitLink(file.Name) {
		link = ""
	}
	f.uploads = append(f.uploads, Uploaded{
		Folder:      folder,
		Name:        file.Name,
		ContentType: file.ContentType,
		Data:        data,
		Link:        link,
	})
	return storage.Object{ID: id, Name: file.Name, Link: link}, nil
}

func (f *Fake) RemoveFolder(ctx context.Context, folder storage.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, folder)
	return nil
}

func (f *Fake) Check(ctx context.Context) error {
	return nil
}

func (f *Fake) Folders() []storage.Folder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.Folder(nil), f.folders...)
}

func (f *Fake) Uploads() []Uploaded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Uploaded(nil), f.uploads...)
}

func (f *Fake) Removed() []storage.Folder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.Folder(nil), f.removed...)
}

// Unconfigured is an Opener whose backend has no credentials.
type Unconfigured struct{}

func (Unconfigured) Open(ctx context.Context) (storage.FileStore, error) {
	return nil, storage.ErrNotConfigured
}
