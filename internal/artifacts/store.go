// Package artifacts downloads selected posters to a deterministic local path
// and prepares the thumbnails that go into digests.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bakkerme/posterdigest/internal/core"
)

// Stored describes the local copy of an artifact.
type Stored struct {
	Path        string
	Existed     bool
	Size        int64
	ContentType string
}

type Options struct {
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int64
	// Overwrite disables the existing-file check (start-fresh mode).
	Overwrite bool
}

// Store writes artifacts under dir as {year}/{safe_title}/{base}_{CLASS}_{dims}.jpg.
type Store struct {
	dir         string
	client      *http.Client
	userAgent   string
	maxBodySize int64
	overwrite   bool
}

func NewStore(dir string, options Options) *Store {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "downloads"
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	userAgent := options.UserAgent
	if userAgent == "" {
		userAgent = "posterdigest/1.0"
	}
	maxBody := options.MaxBodySize
	if maxBody <= 0 {
		maxBody = 100 << 20 // 100 MiB
	}
	return &Store{
		dir:         dir,
		client:      &http.Client{Timeout: timeout},
		userAgent:   userAgent,
		maxBodySize: maxBody,
		overwrite:   options.Overwrite,
	}
}

// Clear removes every stored artifact.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("artifacts: clear %s: %w", s.dir, err)
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// SafeName lower-cases a title and keeps only letters, digits, '_', '-' and
// spaces, which become underscores.
func SafeName(title string) string {
	name := unsafeNameChars.ReplaceAllString(title, "")
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

// PathFor returns the deterministic local path of an artifact.
func (s *Store) PathFor(artifact core.Artifact) string {
	base := artifact.BaseName
	if base == "" {
		base = SafeName(artifact.Title)
	}
	filename := fmt.Sprintf("%s_%s_%s.jpg", base, strings.ToUpper(string(artifact.Class)), artifact.Dimensions)
	return filepath.Join(s.dir, artifact.Year, SafeName(artifact.Title), filename)
}

// Put downloads the artifact unless a non-empty file already exists at its path.
func (s *Store) Put(ctx context.Context, artifact core.Artifact) (Stored, error) {
	logger := core.LoggerFromContext(ctx)
	path := s.PathFor(artifact)

	if !s.overwrite {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			contentType := ""
			if m, err := mimetype.DetectFile(path); err == nil {
				contentType = m.String()
			}
			logger.Info("artifact already downloaded", "path", path, "bytes", info.Size())
			return Stored{Path: path, Existed: true, Size: info.Size(), ContentType: contentType}, nil
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Stored{}, fmt.Errorf("artifacts: stat %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Stored{}, fmt.Errorf("artifacts: create directory: %w", err)
	}
	size, contentType, err := s.download(ctx, artifact.URL, path)
	if err != nil {
		return Stored{}, err
	}
	logger.Info("artifact downloaded", "path", path, "bytes", size, "content_type", contentType)
	return Stored{Path: path, Size: size, ContentType: contentType}, nil
}

func (s *Store) download(ctx context.Context, url, path string) (int64, string, error) {
	if strings.TrimSpace(url) == "" {
		return 0, "", fmt.Errorf("artifacts: download url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("artifacts: build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("artifacts: download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, "", fmt.Errorf("artifacts: download %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, "", fmt.Errorf("artifacts: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, io.LimitReader(resp.Body, s.maxBodySize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, "", fmt.Errorf("artifacts: write %s: %w", path, err)
	}
	if written > s.maxBodySize {
		return 0, "", fmt.Errorf("artifacts: %s exceeds %d bytes", url, s.maxBodySize)
	}
	if written == 0 {
		return 0, "", fmt.Errorf("artifacts: %s returned an empty body", url)
	}

	m, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return 0, "", fmt.Errorf("artifacts: sniff %s: %w", path, err)
	}
	if !strings.HasPrefix(m.String(), "image/") {
		return 0, "", fmt.Errorf("artifacts: %s is %s, not an image", url, m.String())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, "", fmt.Errorf("artifacts: move into place: %w", err)
	}
	committed = true
	return written, m.String(), nil
}
