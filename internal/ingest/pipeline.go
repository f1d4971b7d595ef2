// Package ingest turns a submitted form into remote files and one
// persisted submission record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"form-intake/internal/storage"
	"form-intake/internal/submission"
)

// ErrStorageNotConfigured is returned before any remote call when the
// storage backend lacks its credentials or target folder.
var ErrStorageNotConfigured = errors.New("storage configuration missing")

// Step names a stage of the pipeline.
type Step string

const (
	StepStorage  Step = "storage"
	StepFolder   Step = "folder"
	StepMetadata Step = "metadata"
	StepUpload   Step = "upload"
	StepPersist  Step = "persist"
)

// StepError tells which stage failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step recorded in err, or "" if there is none.
func FailedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

type Options struct {
	// UploadConcurrency bounds parallel uploads per submission; 0 means no bound.
	UploadConcurrency int
	// CleanupOnFailure removes the submission folder when a later step fails.
	CleanupOnFailure bool
	// OnUpload is called after every successful attachment upload.
	OnUpload func(name string, size int64)
	Logger   *slog.Logger
	Now      func() time.Time
}

type Pipeline struct {
	files storage.Opener
	store submission.Store
	opts  Options
	log   *slog.Logger
	now   func() time.Time
}

func NewPipeline(files storage.Opener, store submission.Store, opts Options) *Pipeline {
	p := &Pipeline{
		files: files,
		store: store,
		opts:  opts,
		log:   opts.Logger,
		now:   opts.Now,
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Submit creates the remote folder, uploads the metadata file and every
// non-empty attachment, then persists the record. Any failure aborts the
// submission and no record is written.
func (p *Pipeline) Submit(ctx context.Context, form Form) (submission.Submission, error) {
	fs, err := p.files.Open(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return submission.Submission{}, ErrStorageNotConfigured
		}
		return submission.Submission{}, &StepError{Step: StepStorage, Err: err}
	}

	now := p.now().UTC()
	folder, err := fs.CreateFolder(ctx, FolderName(form.Name, now))
	if err != nil {
		return submission.Submission{}, &StepError{Step: StepFolder, Err: err}
	}
	p.log.DebugContext(ctx, "submission folder created", "folder_id", folder.ID, "folder", folder.Name)

	sub, err := p.fill(ctx, fs, folder, form, now)
	if err != nil {
		if p.opts.CleanupOnFailure {
			p.removeFolder(ctx, fs, folder)
		}
		return submission.Submission{}, err
	}
	return sub, nil
}

func (p *Pipeline) fill(ctx context.Context, fs storage.FileStore, folder storage.Folder, form Form, now time.Time) (submission.Submission, error) {
	meta := MetadataText(form, now)
	_, err := fs.Upload(ctx, folder, storage.File{
		Name:        MetadataFilename,
		ContentType: "text/plain",
		Size:        int64(len(meta)),
		Body:        strings.NewReader(meta),
	})
	if err != nil {
		return submission.Submission{}, &StepError{Step: StepMetadata, Err: err}
	}

	docs, imgs, err := p.uploadAll(ctx, fs, folder, form.Documents, form.Images)
	if err != nil {
		return submission.Submission{}, &StepError{Step: StepUpload, Err: err}
	}

	sub, err := p.store.Create(ctx, submission.New{
		Name:      form.Name,
		Email:     form.Email,
		Phone:     form.Phone,
		Documents: docs,
		Images:    imgs,
	})
	if err != nil {
		return submission.Submission{}, &StepError{Step: StepPersist, Err: err}
	}
	return sub, nil
}

// uploadAll fans out one upload per non-empty attachment and waits for
// all of them. Link order follows attachment order.
func (p *Pipeline) uploadAll(ctx context.Context, fs storage.FileStore, folder storage.Folder, docs, imgs []Attachment) ([]string, []string, error) {
	docLinks := make([]string, len(docs))
	imgLinks := make([]string, len(imgs))

	var g errgroup.Group
	if p.opts.UploadConcurrency > 0 {
		g.SetLimit(p.opts.UploadConcurrency)
	}

	schedule := func(atts []Attachment, links []string) {
		for i, a := range atts {
			if a.Size <= 0 {
				continue
			}
			g.Go(func() error {
				link, err := p.uploadOne(ctx, fs, folder, a)
				if err != nil {
					return err
				}
				links[i] = link
				return nil
			})
		}
	}
	schedule(docs, docLinks)
	schedule(imgs, imgLinks)

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return compact(docLinks), compact(imgLinks), nil
}

func (p *Pipeline) uploadOne(ctx context.Context, fs storage.FileStore, folder storage.Folder, a Attachment) (string, error) {
	rc, err := a.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %q: %w", a.Filename, err)
	}
	defer rc.Close()

	obj, err := fs.Upload(ctx, folder, storage.File{
		Name:        a.Filename,
		ContentType: a.ContentType,
		Size:        a.Size,
		Body:        rc,
	})
	if err != nil {
		return "", err
	}
	if p.opts.OnUpload != nil {
		p.opts.OnUpload(a.Filename, a.Size)
	}
	return obj.Link, nil
}

// removeFolder is the compensating action for a failed submission. It
// is best effort: errors are logged only.
func (p *Pipeline) removeFolder(ctx context.Context, fs storage.FileStore, folder storage.Folder) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := fs.RemoveFolder(ctx, folder); err != nil {
		p.log.WarnContext(ctx, "failed to remove folder of failed submission", "folder_id", folder.ID, "error", err)
		return
	}
	p.log.InfoContext(ctx, "removed folder of failed submission", "folder_id", folder.ID)
}

// compact drops empty links and always returns a non-nil slice.
func compact(links []string) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
