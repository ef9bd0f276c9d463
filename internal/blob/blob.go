// Package blob stores uploaded project files.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lunexops/internal/model"
)

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// 客户端没给类型时按内容嗅探，只读文件头
const sniffLen = 3072

// Store uploads one file under a key prefix and describes what it stored.
// Delete removes an object by key; a missing key is not an error.
type Store interface {
	Upload(ctx context.Context, prefix, name, mimeType string, r io.Reader) (model.ProjectFile, error)
	Delete(ctx context.Context, key string) error
}

// LocalStore writes files beneath Root. Object keys are
// <prefix>/<uuid><ext>, so two uploads of the same name never collide.
type LocalStore struct {
	root    string
	maxSize int64
	logger  *zap.Logger
}

func NewLocalStore(root string, maxSize int64, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{root: root, maxSize: maxSize, logger: logger}, nil
}

func (s *LocalStore) Upload(ctx context.Context, prefix, name, mimeType string, r io.Reader) (model.ProjectFile, error) {
	if err := ctx.Err(); err != nil {
		return model.ProjectFile{}, err
	}

	key := ObjectKey(prefix, name)
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return model.ProjectFile{}, fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return model.ProjectFile{}, fmt.Errorf("create blob: %w", err)
	}

	src := r
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType, src = sniff(r)
	}
	if s.maxSize > 0 {
		src = io.LimitReader(src, s.maxSize+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil && s.maxSize > 0 && n > s.maxSize {
		copyErr = ErrTooLarge
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		if copyErr != nil {
			return model.ProjectFile{}, copyErr
		}
		return model.ProjectFile{}, closeErr
	}

	s.logger.Debug("Blob stored", zap.String("key", key), zap.Int64("size", n))
	return model.ProjectFile{
		Name:     name,
		Path:     key,
		Size:     n,
		MimeType: mimeType,
	}, nil
}

// sniff detects the content type from the head of r and returns a reader
// that still yields the full stream.
func sniff(r io.Reader) (string, io.Reader) {
	head := make([]byte, sniffLen)
	n, _ := io.ReadFull(r, head)
	head = head[:n]
	return mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), r)
}

// Open returns the stored object for key.
func (s *LocalStore) Open(key string) (*os.File, error) {
	p, ok := s.resolve(key)
	if !ok {
		return nil, os.ErrNotExist
	}
	return os.Open(p)
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := s.resolve(key)
	if !ok {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	s.logger.Debug("Blob deleted", zap.String("key", key))
	return nil
}

// resolve 把 key 限制在 root 之下
func (s *LocalStore) resolve(key string) (string, bool) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return "", false
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), true
}

// ObjectKey builds <prefix>/<uuid><ext> from a client file name.
func ObjectKey(prefix, name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	prefix = strings.Trim(path.Clean("/"+prefix), "/")
	if prefix == "" || prefix == "." {
		prefix = "misc"
	}
	return prefix + "/" + uuid.NewString() + ext
}
