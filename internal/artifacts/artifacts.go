package artifacts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lv-onboarding/internal/types"

	"github.com/google/uuid"
)

const MaxBytes = 10 << 20

var allowedMimeTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Upload is an artifact as posted by the client, with base64 data.
type Upload struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type File struct {
	Name     string
	MimeType string
	Data     []byte
}

func AllowedMimeType(mime string) bool {
	_, ok := allowedMimeTypes[strings.ToLower(strings.TrimSpace(mime))]
	return ok
}

// Decode validates the upload metadata and decodes its payload. A leading
// data URL header ("data:image/png;base64,") is stripped.
func (u Upload) Decode() (File, error) {
	name := strings.TrimSpace(u.FileName)
	mime := strings.ToLower(strings.TrimSpace(u.MimeType))
	if name == "" || mime == "" {
		return File{}, errors.New("file is required")
	}
	if !AllowedMimeType(mime) {
		return File{}, errors.New("file type must be jpeg, png, webp or pdf")
	}
	value := strings.TrimSpace(u.Data)
	if value == "" {
		return File{}, errors.New("file is required")
	}
	if idx := strings.Index(value, ","); idx >= 0 && strings.Contains(strings.ToLower(value[:idx]), ";base64") {
		value = value[idx+1:]
	}
	if base64.StdEncoding.DecodedLen(len(value)) > MaxBytes+3 {
		return File{}, errors.New("file is too large (max 10MB)")
	}
	buf, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return File{}, errors.New("invalid file encoding")
	}
	if len(buf) == 0 {
		return File{}, errors.New("file is empty")
	}
	if len(buf) > MaxBytes {
		return File{}, errors.New("file is too large (max 10MB)")
	}
	return File{Name: name, MimeType: mime, Data: buf}, nil
}

// Store persists artifacts for an identity and returns an opaque reference.
// Delete removes everything stored for the identity; deleting an identity
// with no artifacts is not an error.
type Store interface {
	Store(ctx context.Context, identityID string, kind types.ArtifactKind, f File) (string, error)
	Delete(ctx context.Context, identityID string) error
}

type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("artifact root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Store writes f to <root>/<identity>/<kind>-<uuid><ext>. The returned
// reference is the path relative to root.
func (s *DiskStore) Store(ctx context.Context, identityID string, kind types.ArtifactKind, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := uuid.Parse(identityID); err != nil {
		return "", errors.New("invalid identity id")
	}
	dir := filepath.Join(s.root, identityID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	name := string(kind) + "-" + uuid.NewString() + allowedMimeTypes[f.MimeType]
	if err := os.WriteFile(filepath.Join(dir, name), f.Data, 0o640); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return identityID + "/" + name, nil
}

func (s *DiskStore) Delete(ctx context.Context, identityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := uuid.Parse(identityID); err != nil {
		return errors.New("invalid identity id")
	}
	if err := os.RemoveAll(filepath.Join(s.root, identityID)); err != nil {
		return fmt.Errorf("remove artifacts: %w", err)
	}
	return nil
}

// Open returns the stored bytes for a reference produced by Store.
func (s *DiskStore) Open(ref string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, errors.New("invalid artifact reference")
	}
	return os.ReadFile(filepath.Join(s.root, clean))
}
