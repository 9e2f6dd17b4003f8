// Package playback serves downloaded videos to players and sequences clip
// playback against a player's reported position.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const VideoFilename = "video.mp4"

var ErrVideoNotFound = errors.New("video not found")

type VideoService interface {
	ProjectDir(projectID string) string
	VideoPath(projectID string) string
	ServeVideo(w http.ResponseWriter, r *http.Request, projectID string) error
}

// FileServer streams project videos from <root>/projects/<id>/video.mp4 with
// byte-range support.
type FileServer struct {
	root   string
	logger *slog.Logger
}

func NewFileServer(root string, logger *slog.Logger) *FileServer {
	return &FileServer{root: root, logger: logger}
}

func (s *FileServer) ProjectDir(projectID string) string {
	return filepath.Join(s.root, "projects", projectID)
}

func (s *FileServer) VideoPath(projectID string) string {
	return filepath.Join(s.ProjectDir(projectID), VideoFilename)
}

// PublicPath is the URL path the video is served under.
func PublicPath(projectID string) string {
	return "/projects/" + projectID + "/" + VideoFilename
}

// ServeVideo writes the project's video or returns ErrVideoNotFound without
// writing anything.
func (s *FileServer) ServeVideo(w http.ResponseWriter, r *http.Request, projectID string) error {
	return s.serveFile(w, r, s.VideoPath(projectID))
}

func (s *FileServer) serveFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrVideoNotFound
		}
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat video: %w", err)
	}
	if stat.IsDir() {
		return ErrVideoNotFound
	}

	size := stat.Size()
	contentType := contentTypeFor(filePath)

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))

	parsed, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// malformed ranges are ignored and the whole file is sent
		parsed = nil
	case err != nil:
		return err
	}

	body := r.Method != http.MethodHead

	if parsed == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if body {
			if _, err := io.Copy(w, file); err != nil && s.logger != nil {
				s.logger.Debug("video copy interrupted", "error", err)
			}
		}
		return nil
	}

	h.Set("Content-Length", strconv.FormatInt(parsed.ContentLength(), 10))
	h.Set("Content-Range", parsed.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if !body {
		return nil
	}
	if _, err := file.Seek(parsed.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	if _, err := io.CopyN(w, file, parsed.ContentLength()); err != nil && s.logger != nil {
		s.logger.Debug("video range copy interrupted", "error", err)
	}
	return nil
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
