package attachment

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"gigchat/internal/logger"
	"gigchat/internal/model"
)

// File categories used by renderers to pick a preview
const (
	CategoryImage = "image"
	CategoryPDF   = "pdf"
	CategoryOther = "other"
)

// PlaceholderBody is the message body used when only a file is sent
const PlaceholderBody = "1 file sent"

// Payload is a file in its transmissible form
type Payload struct {
	Data     string
	Category string
	Name     string
	Size     string
}

// Apply copies the payload onto msg and defaults an empty body
func (p Payload) Apply(msg *model.Message) {
	msg.File = p.Data
	msg.FileType = p.Category
	msg.FileName = p.Name
	msg.FileSize = p.Size
	if msg.Body == "" {
		msg.Body = PlaceholderBody
	}
}

// Codec stages at most one selected file and encodes it on demand.
// It is not safe for concurrent use; the session serializes access.
type Codec struct {
	validate Validator
	log      *zap.Logger

	staged  File
	preview bool
}

// NewCodec creates a Codec using validate as the checkFile policy
func NewCodec(validate Validator, log *zap.Logger) *Codec {
	if validate == nil {
		validate = CheckFile(Policy{})
	}
	return &Codec{validate: validate, log: logger.OrNop(log)}
}

// Select validates f and stages it, replacing any staged file.
// A rejected file leaves the codec untouched.
func (c *Codec) Select(f File) error {
	if err := c.validate(f); err != nil {
		c.log.Debug("attachment rejected", zap.Error(err))
		return err
	}
	if c.staged != nil {
		c.log.Debug("replacing staged attachment",
			zap.String("previous", c.staged.Name()),
			zap.String("file", f.Name()))
	}
	c.staged = f
	c.preview = true
	return nil
}

// Remove unstages the file and hides the preview
func (c *Codec) Remove() {
	c.staged = nil
	c.preview = false
}

// Staged returns the staged file or nil
func (c *Codec) Staged() File {
	return c.staged
}

// PreviewVisible reports whether the preview panel is shown
func (c *Codec) PreviewVisible() bool {
	return c.preview
}

// Encode reads f and converts it into a data URL payload
func Encode(f File) (Payload, error) {
	r, err := f.Open()
	if err != nil {
		return Payload{}, fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, fmt.Errorf("read %s: %w", f.Name(), err)
	}

	mt := resolveMime(mimetype.Detect(data), f.Name())

	return Payload{
		Data:     "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data),
		Category: Category(mt),
		Name:     f.Name(),
		Size:     strconv.FormatInt(f.Size(), 10),
	}, nil
}

// Category maps a mime type onto a coarse file category
func Category(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case mimeType == "application/pdf":
		return CategoryPDF
	default:
		return CategoryOther
	}
}
