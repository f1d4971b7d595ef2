package ingest

import (
	"fmt"
	"io"
	"time"
)

// MetadataFilename is the plain-text summary written into every folder.
const MetadataFilename = "form-data.txt"

// Attachment is one uploaded file of a form. Open may be called once.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Form is a decoded submission request. Scalars are taken as sent.
type Form struct {
	Name      string
	Email     string
	Phone     string
	Documents []Attachment
	Images    []Attachment
}

// FolderName names the remote folder of a submission. Two submissions by
// the same name on the same day get identical names.
func FolderName(name string, now time.Time) string {
	return fmt.Sprintf("%s - %s", name, now.UTC().Format("2006-01-02"))
}

// MetadataText renders the form-data.txt content.
func MetadataText(f Form, now time.Time) string {
	return fmt.Sprintf("Name: %s\nEmail: %s\nPhone: %s\n\nSubmitted at: %s",
		f.Name, f.Email, f.Phone, now.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}
