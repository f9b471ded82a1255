package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source produces frames on demand. A nil frame or an error is a transient
// capture failure: the tick is wasted, never retried.
type Source interface {
	Capture(ctx context.Context) (*Frame, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Frame, error)

// Capture calls f.
func (f SourceFunc) Capture(ctx context.Context) (*Frame, error) { return f(ctx) }

// NewFrame builds a frame from encoded image bytes, reading the dimensions
// from the image header.
func NewFrame(data []byte, at time.Time) (*Frame, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	return &Frame{Data: data, CapturedAt: at, Width: cfg.Width, Height: cfg.Height}, nil
}

// DirSource replays image files from a directory in name order, looping.
// It lets the pipeline run headless against recorded screenshots.
type DirSource struct {
	dir    string
	files  []string
	next   int
	now    func() time.Time
	mu     sync.Mutex
	logger *zap.Logger
}

// NewDirSource lists the PNG and JPEG files of dir.
func NewDirSource(dir string, logger *zap.Logger) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)
	logger.Info("replaying frames from directory",
		zap.String("dir", dir), zap.Int("files", len(files)))
	return &DirSource{dir: dir, files: files, now: time.Now, logger: logger}, nil
}

// Capture returns the next file as a frame stamped with the current time.
func (s *DirSource) Capture(_ context.Context) (*Frame, error) {
	s.mu.Lock()
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	return NewFrame(data, s.now())
}

// CommandSource runs an external screenshot command that writes an encoded
// image to stdout, e.g. `grim -` or `screencapture -x -t png /dev/stdout`.
type CommandSource struct {
	name    string
	args    []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewCommandSource parses command into a program and its arguments.
func NewCommandSource(command string, timeout time.Duration, logger *zap.Logger) (*CommandSource, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty capture command")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CommandSource{name: fields[0], args: fields[1:], timeout: timeout, logger: logger}, nil
}

// Capture runs the command once.
func (s *CommandSource) Capture(ctx context.Context) (*Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.name, s.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("capture command %s: %w: %s", s.name, err, strings.TrimSpace(stderr.String()))
	}
	return NewFrame(stdout.Bytes(), time.Now())
}
