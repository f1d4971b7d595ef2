// validation.go - Normalisation of uploaded attachment names and types.
//
// Submissions are not rejected here: the form is advisory and any file
// the client sends is stored. These helpers only make the name safe to
// use as an object name and give every upload a usable content type.
package server

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

const genericContentType = "application/octet-stream"

// SanitizeFilename removes path components and control bytes from a
// client-supplied filename.
func SanitizeFilename(filename string) string {
	// Remove path separators
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	// Remove null bytes
	filename = strings.ReplaceAll(filename, "\x00", "")

	// Trim spaces and dots from start/end
	filename = strings.Trim(filename, " .")

	// Limit length
	if len(filename) > 255 {
		ext := filepath.Ext(filename)
		if len(ext) > 32 {
			ext = ""
		}
		filename = filename[:255-len(ext)] + ext
	}

	if filename == "" {
		filename = "unnamed"
	}

	return filename
}

// contentTypeOf picks the type recorded for an upload: the part's own
// Content-Type unless it is missing or generic, then the extension, then
// a sniff of the first 512 bytes.
func contentTypeOf(fh *multipart.FileHeader) string {
	if ct := mediaType(fh.Header.Get("Content-Type")); ct != "" && ct != genericContentType {
		return ct
	}

	if byExt := mediaType(mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename)))); byExt != "" {
		return byExt
	}

	return sniffContentType(fh)
}

func sniffContentType(fh *multipart.FileHeader) string {
	f, err := fh.Open()
	if err != nil {
		return genericContentType
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	if n == 0 {
		return genericContentType
	}
	return mediaType(http.DetectContentType(buf[:n]))
}

// mediaType strips parameters such as charset.
func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}
