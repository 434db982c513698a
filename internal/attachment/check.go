package attachment

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file is too large")
	ErrUnsupportedType = errors.New("file type is not supported")
)

// DefaultAllowed lists the mime types, or type prefixes ending in "/",
// accepted by the default policy
var DefaultAllowed = []string{
	"image/",
	"video/",
	"audio/",
	"application/pdf",
	"application/zip",
	"text/plain",
}

// Validator decides whether a selected file may be staged
type Validator func(File) error

// Policy configures CheckFile
type Policy struct {
	MaxSize int64
	Allowed []string
}

// CheckFile returns a Validator enforcing the size limit and the mime allow
// list. The mime type is sniffed from the content, not trusted from the name.
func CheckFile(p Policy) Validator {
	allowed := p.Allowed
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}

	return func(f File) error {
		if f == nil || f.Size() == 0 {
			return ErrEmptyFile
		}
		if p.MaxSize > 0 && f.Size() > p.MaxSize {
			return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, f.Name(), f.Size(), p.MaxSize)
		}

		mt, err := sniff(f)
		if err != nil {
			return err
		}
		for _, a := range allowed {
			if strings.HasSuffix(a, "/") && strings.HasPrefix(mt, a) {
				return nil
			}
			if mt == a {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnsupportedType, mt)
	}
}

func sniff(f File) (string, error) {
	r, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer r.Close()

	detected, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("detect %s: %w", f.Name(), err)
	}
	return resolveMime(detected, f.Name()), nil
}

// resolveMime strips parameters and falls back to the file extension when
// the content is not recognised
func resolveMime(detected *mimetype.MIME, name string) string {
	mt, _, _ := strings.Cut(detected.String(), ";")
	if mt == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			mt, _, _ = strings.Cut(byExt, ";")
		}
	}
	return strings.TrimSpace(mt)
}
