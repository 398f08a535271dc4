// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package files

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stephenmkbrady/simplex-bot/lib/clock"
	"github.com/stephenmkbrady/simplex-bot/message"
)

var (
	// ErrTooLarge rejects a file exceeding the size limit.
	ErrTooLarge = errors.New("files: file exceeds size limit")

	// ErrKindNotAllowed rejects a file whose kind is not in the
	// allowed list.
	ErrKindNotAllowed = errors.New("files: file kind not allowed")

	// ErrNoFileName rejects a transfer without a usable name.
	ErrNoFileName = errors.New("files: missing file name")
)

// kindByExtension maps lowercased extensions to file kinds.
var kindByExtension = map[string]string{
	".jpg": "image", ".jpeg": "image", ".png": "image", ".gif": "image",
	".webp": "image", ".bmp": "image",
	".mp4": "video", ".avi": "video", ".mkv": "video", ".mov": "video",
	".webm": "video",
	".mp3": "audio", ".wav": "audio", ".ogg": "audio", ".m4a": "audio",
	".flac": "audio",
	".pdf": "document", ".doc": "document", ".docx": "document",
	".txt": "document", ".md": "document", ".rtf": "document",
	".odt": "document",
}

// KindFor returns the file kind for a filename: image, video, audio,
// document, or other.
func KindFor(filename string) string {
	if kind, ok := kindByExtension[strings.ToLower(filepath.Ext(filename))]; ok {
		return kind
	}
	return "other"
}

// Config configures a Manager.
type Config struct {
	// Root is the download directory; files land in per-kind
	// subdirectories beneath it. Required.
	Root string

	// MaxSize is the largest accepted file in bytes. <= 0 means
	// unlimited.
	MaxSize int64

	// AllowedKinds limits accepted kinds (image, video, audio,
	// document). Empty allows everything.
	AllowedKinds []string

	// XFTPCommand is the xftp binary. Default: xftp.
	XFTPCommand string

	// XFTPTimeout bounds one xftp receive. Default: 5m.
	XFTPTimeout time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager validates and stores incoming files.
type Manager struct {
	root         string
	maxSize      int64
	allowedKinds map[string]bool
	xftpCommand  string
	xftpTimeout  time.Duration
	clock        clock.Clock
	logger       *slog.Logger
}

// NewManager returns a Manager rooted at cfg.Root.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("files: root directory is required")
	}
	if cfg.XFTPCommand == "" {
		cfg.XFTPCommand = "xftp"
	}
	if cfg.XFTPTimeout <= 0 {
		cfg.XFTPTimeout = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var allowed map[string]bool
	if len(cfg.AllowedKinds) > 0 {
		allowed = make(map[string]bool, len(cfg.AllowedKinds))
		for _, kind := range cfg.AllowedKinds {
			allowed[kind] = true
		}
	}

	return &Manager{
		root:         cfg.Root,
		maxSize:      cfg.MaxSize,
		allowedKinds: allowed,
		xftpCommand:  cfg.XFTPCommand,
		xftpTimeout:  cfg.XFTPTimeout,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}, nil
}

// Validate checks an announced transfer against policy before any
// bytes move.
func (m *Manager) Validate(file message.FileRef) error {
	if file.FileName == "" {
		return ErrNoFileName
	}
	if m.maxSize > 0 && file.FileSize > m.maxSize {
		return fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, file.FileSize, m.maxSize)
	}
	if m.allowedKinds != nil {
		kind := KindFor(file.FileName)
		if !m.allowedKinds[kind] {
			return fmt.Errorf("%w: %s (%s)", ErrKindNotAllowed, kind, file.FileName)
		}
	}
	return nil
}

// SafeName builds a collision-safe stored filename from the sending
// contact and the original name. Both components are sanitized; the
// timestamp keeps repeated sends of the same name apart.
func (m *Manager) SafeName(contact, original string) string {
	return fmt.Sprintf("%s_%d_%s",
		sanitize(contact), m.clock.Now().Unix(), sanitize(filepath.Base(original)))
}

// DestDir returns (and creates) the storage directory for a file
// kind.
func (m *Manager) DestDir(kind string) (string, error) {
	dir := filepath.Join(m.root, kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("files: creating %s: %w", dir, err)
	}
	return dir, nil
}

// Store moves a downloaded file into its kind directory under a safe
// name and returns the final path.
func (m *Manager) Store(contact string, file message.FileRef, sourcePath string) (string, error) {
	dir, err := m.DestDir(KindFor(file.FileName))
	if err != nil {
		return "", err
	}
	destination := filepath.Join(dir, m.SafeName(contact, file.FileName))
	if err := os.Rename(sourcePath, destination); err != nil {
		return "", fmt.Errorf("files: storing %s: %w", file.FileName, err)
	}
	m.logger.Info("file stored", "from", contact, "name", file.FileName, "path", destination)
	return destination, nil
}

// sanitize strips path separators and control characters from a name
// component. Empty results become "unnamed"; leading dots are
// dropped so stored files are never hidden or relative.
func sanitize(name string) string {
	var builder strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '.', r == '-', r == '_':
			builder.WriteRune(r)
		case r == ' ':
			builder.WriteRune('_')
		}
	}
	cleaned := strings.TrimLeft(builder.String(), ".")
	if cleaned == "" {
		return "unnamed"
	}
	return cleaned
}
