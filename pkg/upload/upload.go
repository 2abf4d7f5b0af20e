package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxSize caps a single upload.
const MaxSize = 20 << 20

var ErrUnsupportedFileType = errors.New("unsupported file type")

// File is an accepted upload held in memory.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
	// Pages is set for PDFs only.
	Pages int
}

// New validates the declared mime type, sniffing the content when none is given.
func New(name, mimeType string, data []byte) (*File, error) {
	mt := normalizeMIME(mimeType)
	if mt == "" || mt == "application/octet-stream" {
		mt = normalizeMIME(http.DetectContentType(data))
	}
	if !Accepted(mt) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, mt)
	}
	f := &File{Name: name, MIMEType: mt, Data: data}
	if mt == "application/pdf" {
		pages, err := countPages(data)
		if err != nil {
			return nil, fmt.Errorf("%w: unreadable pdf: %v", ErrUnsupportedFileType, err)
		}
		f.Pages = pages
	}
	return f, nil
}

// Accepted reports whether a mime type may be sent for analysis.
func Accepted(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") ||
		strings.HasPrefix(mimeType, "video/") ||
		mimeType == "application/pdf"
}

// DataURI renders the file as data:<mime>;base64,<payload>.
func (f *File) DataURI() string {
	return "data:" + f.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

func normalizeMIME(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return mt
}

func countPages(data []byte) (pages int, err error) {
	// the reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
