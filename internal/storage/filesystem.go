// Package storage keeps attachment blobs on the local filesystem under a
// single containment root.
package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsafeFilename = errors.New("unsafe filename")
	ErrTooLarge       = errors.New("file exceeds upload limit")
	ErrUnsafePath     = errors.New("path escapes storage root")
	ErrRootNotAbs     = errors.New("storage root must be an absolute path")
)

const (
	dirPerm   = 0o750
	filePerm  = 0o640
	chunkSize = 32 * 1024
	tempGlob  = ".upload-*"
)

// Store writes and reads blobs below Root. Root is the symlink-resolved form
// of the configured directory.
type Store struct {
	root string
}

// NewFilesystemStore prepares root (creating it if missing) and resolves it
// to its canonical form.
func NewFilesystemStore(root string) (*Store, error) {
	if !filepath.IsAbs(root) {
		return nil, ErrRootNotAbs
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Store{root: filepath.Clean(resolved)}, nil
}

// Root returns the canonical storage root.
func (s *Store) Root() string {
	return s.root
}

// ValidateFilename rejects client names that could address anything but a
// single entry.
func ValidateFilename(name string) error {
	if name == "" ||
		strings.Contains(name, "..") ||
		strings.ContainsAny(name, "/\\\x00") {
		return ErrUnsafeFilename
	}
	return nil
}

// StoredName derives the on-disk name: hex(md5(original)) plus a random
// 16-hex-char suffix so repeated uploads of one name never collide.
func StoredName(original string) string {
	sum := md5.Sum([]byte(original))
	id := uuid.New()
	return hex.EncodeToString(sum[:]) + "-" + hex.EncodeToString(id[:8])
}

// Put streams r into name, accepting at most limit bytes. The blob only
// becomes visible under name once it is fully written and synced.
func (s *Store) Put(ctx context.Context, name string, r io.Reader, limit int64) (int64, error) {
	target, err := s.resolve(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.root, tempGlob)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := copyCapped(ctx, tmp, r, limit)
	if err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return 0, fmt.Errorf("chmod blob: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return 0, fmt.Errorf("commit blob: %w", err)
	}
	committed = true

	if err := syncDir(s.root); err != nil {
		_ = os.Remove(target)
		return 0, err
	}
	return written, nil
}

// copyCapped copies until EOF, failing with ErrTooLarge once more than
// limit bytes arrive and with ctx.Err() when the context ends.
func copyCapped(ctx context.Context, dst io.Writer, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, chunkSize)
	lr := io.LimitReader(src, limit+1)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := lr.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > limit {
				return total, ErrTooLarge
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("write blob: %w", werr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		if rerr != nil {
			return total, fmt.Errorf("read upload: %w", rerr)
		}
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open storage root: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync storage root: %w", err)
	}
	return nil
}

// Open returns a reader for name and its size.
func (s *Store) Open(name string) (*os.File, int64, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, 0, err
	}
	canonical, err := filepath.EvalSymlinks(p)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve blob: %w", err)
	}
	if !s.contains(canonical) {
		return nil, 0, ErrUnsafePath
	}
	f, err := os.Open(canonical)
	if err != nil {
		return nil, 0, fmt.Errorf("open blob: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat blob: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, ErrUnsafePath
	}
	return f, info.Size(), nil
}

// Remove deletes name. A missing blob is not an error.
func (s *Store) Remove(name string) error {
	p, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Blob describes a committed file in the root.
type Blob struct {
	Name    string
	ModTime time.Time
}

// List returns the committed blobs in the root. In-flight temp files are skipped.
func (s *Store) List() ([]Blob, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}
	blobs := make([]Blob, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".upload-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, Blob{Name: e.Name(), ModTime: info.ModTime()})
	}
	return blobs, nil
}

func (s *Store) resolve(name string) (string, error) {
	if err := ValidateFilename(name); err != nil {
		return "", ErrUnsafePath
	}
	p := filepath.Join(s.root, name)
	if !s.contains(p) {
		return "", ErrUnsafePath
	}
	return p, nil
}

func (s *Store) contains(p string) bool {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
