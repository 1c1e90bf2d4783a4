package service

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/contentgate/internal/db"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const dataURLPrefix = "data:"

var ErrInvalidLocator = errors.New("attachment locator is not a base64 data url")

// AttachmentService turns uploaded bytes into FileAttachment records whose
// locator embeds the bytes as a data URL.
type AttachmentService struct {
	maxBytes int64
	now      func() time.Time
}

// NewAttachmentService creates an AttachmentService. maxBytes <= 0 disables the size limit.
func NewAttachmentService(maxBytes int64) *AttachmentService {
	return &AttachmentService{maxBytes: maxBytes, now: time.Now}
}

// Encode builds an attachment from raw bytes. A blank or generic mimeType is
// replaced by one sniffed from the content; images also record their size.
func (s *AttachmentService) Encode(name, mimeType string, data []byte) (db.FileAttachment, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return db.FileAttachment{}, newValidationError("file", "file name is required")
	}
	if len(data) == 0 {
		return db.FileAttachment{}, newValidationError("file", "file is empty")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return db.FileAttachment{}, newValidationError("file", fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
	}

	mediaType := normalizeMediaType(mimeType)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = normalizeMediaType(mimetype.Detect(data).String())
	}

	attachment := db.FileAttachment{
		ID:         uuid.NewString(),
		Name:       name,
		MimeType:   mediaType,
		Size:       int64(len(data)),
		Locator:    dataURLPrefix + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data),
		UploadedAt: s.now(),
	}

	if strings.HasPrefix(mediaType, "image/") {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			attachment.Width = cfg.Width
			attachment.Height = cfg.Height
		}
	}
	return attachment, nil
}

// DecodeLocator returns the media type and bytes held by a data URL locator.
func DecodeLocator(locator string) (string, []byte, error) {
	if !strings.HasPrefix(locator, dataURLPrefix) {
		return "", nil, ErrInvalidLocator
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(locator, dataURLPrefix), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, ErrInvalidLocator
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	mediaType := strings.TrimSuffix(header, ";base64")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return mediaType, data, nil
}

// normalizeMediaType drops parameters such as charset.
func normalizeMediaType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return mediaType
}
