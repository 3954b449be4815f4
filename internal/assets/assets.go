// Package assets answers image-metadata queries for the dungeon compiler.
package assets

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// NotFoundError reports an image path with no backing asset.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("asset %q not found", e.Path)
}

// FileProvider reads image headers from files under a root directory.
type FileProvider struct {
	root string
}

// NewFileProvider creates a FileProvider rooted at root.
//
// Precondition: root must be a directory path; it is not checked until lookup.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{root: root}
}

// ImageDimensions decodes only the header of the image at path (relative to
// the root) and returns its natural width and height.
//
// Postcondition: Returns *NotFoundError when the file does not exist, or
// ctx.Err() when ctx is done before the header is read.
func (p *FileProvider) ImageDimensions(ctx context.Context, path string) (int, int, error) {
	full, err := p.resolve(path)
	if err != nil {
		return 0, 0, err
	}

	type result struct {
		cfg image.Config
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := os.Open(full)
		if err != nil {
			if os.IsNotExist(err) {
				err = &NotFoundError{Path: path}
			}
			done <- result{err: err}
			return
		}
		defer f.Close()
		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			err = fmt.Errorf("decoding %q: %w", path, err)
		}
		done <- result{cfg: cfg, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return 0, 0, r.err
		}
		return r.cfg.Width, r.cfg.Height, nil
	}
}

// resolve joins path onto the root, rejecting paths that escape it.
func (p *FileProvider) resolve(path string) (string, error) {
	if path == "" {
		return "", &NotFoundError{Path: path}
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("asset path %q escapes the asset root", path)
	}
	return filepath.Join(p.root, clean), nil
}

// Size is an image's natural dimensions.
type Size struct {
	Width, Height int
}

// StaticProvider serves dimensions from an in-memory table. It is safe for
// concurrent use.
type StaticProvider struct {
	mu    sync.RWMutex
	sizes map[string]Size
}

// NewStaticProvider creates a StaticProvider seeded with sizes.
func NewStaticProvider(sizes map[string]Size) *StaticProvider {
	p := &StaticProvider{sizes: make(map[string]Size, len(sizes))}
	for k, v := range sizes {
		p.sizes[k] = v
	}
	return p
}

// Set records the dimensions of path.
func (p *StaticProvider) Set(path string, s Size) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sizes[path] = s
}

// ImageDimensions returns the recorded dimensions of path.
//
// Postcondition: Returns *NotFoundError for an unknown path.
func (p *StaticProvider) ImageDimensions(ctx context.Context, path string) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sizes[path]
	if !ok {
		return 0, 0, &NotFoundError{Path: path}
	}
	return s.Width, s.Height, nil
}
