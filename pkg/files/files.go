// Package files manages the upload folder: safe names, size limits, listing and cleanup.
package files

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

var (
	ErrFileNotFound        = errors.New("file not found")
	ErrFileTooLarge        = errors.New("file too large")
	ErrExtensionNotAllowed = errors.New("file type not allowed")
	ErrNoFile              = errors.New("no file provided")
)

var (
	unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.-]`)
	separators  = regexp.MustCompile(`[\s_]+`)
)

// SecureFilename strips directories and replaces anything outside letters,
// digits, dot, dash and underscore. Runs of whitespace and underscores collapse
// to one underscore.
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = separators.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "unnamed_file"
	}
	return name
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Info describes a file in the upload folder.
type Info struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"size_human"`
	Extension string    `json:"extension"`
	MimeType  string    `json:"mime_type,omitempty"`
	Modified  time.Time `json:"modified"`
	Path      string    `json:"path"`
}

// Saved is the result of storing an upload.
type Saved struct {
	Info
	OriginalFilename string `json:"original_filename"`
	SavedFilename    string `json:"saved_filename"`
}

type CleanupResult struct {
	DeletedFiles []string `json:"deleted_files"`
	DeletedCount int      `json:"deleted_count"`
	Errors       []string `json:"errors"`
}

type Stats struct {
	TotalFiles        int            `json:"total_files"`
	TotalSize         int64          `json:"total_size"`
	TotalSizeHuman    string         `json:"total_size_human"`
	FileTypes         map[string]int `json:"file_types"`
	UploadFolder      string         `json:"upload_folder"`
	MaxFileSize       string         `json:"max_file_size"`
	AllowedExtensions []string       `json:"allowed_extensions"`
}

type Config struct {
	UploadFolder      string
	MaxFileSize       int64
	AllowedExtensions []string
}

// Manager owns one upload folder.
type Manager struct {
	dir     string
	maxSize int64
	allowed []string
	logger  *zap.Logger
}

// New creates the upload folder if needed.
func New(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.UploadFolder, 0755); err != nil {
		return nil, fmt.Errorf("create upload folder: %w", err)
	}
	allowed := make([]string, 0, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed = append(allowed, strings.TrimPrefix(strings.ToLower(ext), "."))
	}
	return &Manager{
		dir:     cfg.UploadFolder,
		maxSize: cfg.MaxFileSize,
		allowed: allowed,
		logger:  logger,
	}, nil
}

func (m *Manager) Dir() string { return m.dir }

// Allowed reports whether name carries one of the configured extensions.
func (m *Manager) Allowed(name string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, a := range m.allowed {
		if a == ext {
			return true
		}
	}
	return false
}

// Save copies r into the upload folder. customName, when set, replaces the stem
// of name and keeps its extension. Existing files are never overwritten: a
// numeric suffix is added instead.
func (m *Manager) Save(name, customName string, r io.Reader) (*Saved, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNoFile
	}
	if !m.Allowed(name) {
		return nil, fmt.Errorf("%w. Allowed types: %s", ErrExtensionNotAllowed, strings.Join(m.allowed, ", "))
	}

	filename := SecureFilename(name)
	if customName != "" {
		filename = SecureFilename(customName + filepath.Ext(name))
	}

	f, filename, err := m.create(filename)
	if err != nil {
		return nil, err
	}
	path := f.Name()

	src := r
	if m.maxSize > 0 {
		src = io.LimitReader(r, m.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && m.maxSize > 0 && n > m.maxSize {
		err = fmt.Errorf("%w: limit is %s", ErrFileTooLarge, HumanSize(m.maxSize))
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save %s: %w", filename, err)
	}

	info, err := m.Info(path)
	if err != nil {
		return nil, err
	}
	m.logger.Info("file saved", zap.String("filename", filename), zap.Int64("size", n))
	return &Saved{Info: *info, OriginalFilename: name, SavedFilename: filename}, nil
}

// create opens a new file, picking stem_N.ext when the name is taken.
func (m *Manager) create(filename string) (*os.File, string, error) {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	candidate := filename
	for i := 1; ; i++ {
		f, err := os.OpenFile(filepath.Join(m.dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}

// Info stats path.
func (m *Manager) Info(path string) (*Info, error) {
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}
	return infoFor(path, st), nil
}

func infoFor(path string, st os.FileInfo) *Info {
	ext := Extension(st.Name())
	var mimeType string
	if ext != "" {
		mimeType = mime.TypeByExtension("." + ext)
	}
	return &Info{
		Filename:  st.Name(),
		Size:      st.Size(),
		SizeHuman: HumanSize(st.Size()),
		Extension: ext,
		MimeType:  mimeType,
		Modified:  st.ModTime(),
		Path:      path,
	}
}

// List returns regular files in the folder, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	files := make([]Info, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		st, err := e.Info()
		if err != nil {
			m.logger.Warn("skipping unreadable upload", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		files = append(files, *infoFor(filepath.Join(m.dir, e.Name()), st))
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

// Path returns the location of an uploaded file.
func (m *Manager) Path(name string) (string, error) {
	path := filepath.Join(m.dir, SecureFilename(name))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return "", err
	}
	return path, nil
}

func (m *Manager) Delete(name string) error {
	path, err := m.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	m.logger.Info("file deleted", zap.String("filename", filepath.Base(path)))
	return nil
}

// CleanupOlderThan removes files last modified more than days ago.
func (m *Manager) CleanupOlderThan(days int) (*CleanupResult, error) {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	files, err := m.List()
	if err != nil {
		return nil, err
	}
	res := &CleanupResult{DeletedFiles: []string{}, Errors: []string{}}
	for _, f := range files {
		if !f.Modified.Before(cutoff) {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Error deleting %s: %v", f.Filename, err))
			continue
		}
		res.DeletedFiles = append(res.DeletedFiles, f.Filename)
	}
	res.DeletedCount = len(res.DeletedFiles)
	return res, nil
}

func (m *Manager) Stats() (*Stats, error) {
	files, err := m.List()
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		FileTypes:         map[string]int{},
		UploadFolder:      m.dir,
		MaxFileSize:       HumanSize(m.maxSize),
		AllowedExtensions: m.allowed,
	}
	for _, f := range files {
		stats.TotalFiles++
		stats.TotalSize += f.Size
		stats.FileTypes[f.Extension]++
	}
	stats.TotalSizeHuman = HumanSize(stats.TotalSize)
	return stats, nil
}

// HumanSize formats a byte count with binary units, e.g. "1.5 KiB".
func HumanSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
