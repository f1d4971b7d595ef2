package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// fileFields are the Drive file fields every call asks for.
const fileFields = "id, name, webViewLink"

// DriveConfig holds the service-account credentials and the parent folder
// that receives one sub-folder per submission.
type DriveConfig struct {
	FolderID    string
	ClientEmail string
	PrivateKey  string
}

// Complete reports whether every setting is present.
func (c DriveConfig) Complete() bool {
	return c.FolderID != "" && c.ClientEmail != "" && c.PrivateKey != ""
}

// Drive stores uploads in Google Drive.
type Drive struct {
	svc    *drive.Service
	rootID string
}

// NewDrive authenticates as the configured service account. Extra client
// options are appended after the authenticated HTTP client.
func NewDrive(ctx context.Context, cfg DriveConfig, opts ...option.ClientOption) (*Drive, error) {
	if !cfg.Complete() {
		return nil, ErrNotConfigured
	}

	// The client outlives the request that triggered its construction.
	ctx = context.WithoutCancel(ctx)

	jwtCfg := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{drive.DriveScope},
		TokenURL:   google.JWTTokenURL,
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(jwtCfg.Client(ctx))}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Drive{svc: svc, rootID: cfg.FolderID}, nil
}

func (d *Drive) CreateFolder(ctx context.Context, name string) (Folder, error) {
	f, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{d.rootID},
	}).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return Folder{}, fmt.Errorf("failed to create drive folder %q: %w", name, err)
	}
	return Folder{ID: f.Id, Name: f.Name, Link: f.WebViewLink}, nil
}

func (d *Drive) Upload(ctx context.Context, folder Folder, file File) (Object, error) {
	meta := &drive.File{
		Name:     file.Name,
		MimeType: file.ContentType,
		Parents:  []string{folder.ID},
	}

	var media []googleapi.MediaOption
	if file.ContentType != "" {
		media = append(media, googleapi.ContentType(file.ContentType))
	}

	f, err := d.svc.Files.Create(meta).
		Media(file.Body, media...).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload %q to drive: %w", file.Name, err)
	}
	return Object{ID: f.Id, Name: f.Name, Link: f.WebViewLink}, nil
}

func (d *Drive) RemoveFolder(ctx context.Context, folder Folder) error {
	err := d.svc.Files.Delete(folder.ID).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete drive folder %s: %w", folder.ID, err)
	}
	return nil
}

func (d *Drive) Check(ctx context.Context) error {
	_, err := d.svc.Files.Get(d.rootID).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive root folder %s unreachable: %w", d.rootID, err)
	}
	return nil
}
