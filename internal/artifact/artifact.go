// Package artifact stores captured device configurations as timestamped
// text files, one directory per device.
package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/tastythames/switch-backup/internal/model"
)

const (
	timestampLayout = "20060102_150405"
	fileSuffix      = ".txt"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Entry describes one stored artifact.
type Entry struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Store is rooted at a directory, every path it reads or removes must
// resolve inside that directory.
type Store struct {
	root   string
	logger *logrus.Logger
}

// New creates the root directory when missing.
func New(root string, logger *logrus.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(model.ErrStorage, "resolve backup directory: "+err.Error())
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.Wrap(model.ErrStorage, "create backup directory: "+err.Error())
	}

	// symlinked roots (e.g. /var -> /private/var) are compared resolved
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	return &Store{root: abs, logger: logger}, nil
}

// Root returns the absolute store directory.
func (s *Store) Root() string {
	return s.root
}

// SanitizeName turns a hostname into a safe single path element.
func SanitizeName(name string) string {
	var b strings.Builder

	for _, r := range norm.NFKD.String(name) {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}

	cleaned := strings.NewReplacer("/", " ", `\`, " ").Replace(b.String())
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	cleaned = unsafeChars.ReplaceAllString(cleaned, "")
	cleaned = strings.Trim(cleaned, "._")

	if cleaned == "" {
		return "unnamed"
	}

	return cleaned
}

// Filename returns the artifact file name for hostname captured at ts.
func Filename(hostname string, ts time.Time) string {
	return fmt.Sprintf("%s_config_%s%s", SanitizeName(hostname), ts.Format(timestampLayout), fileSuffix)
}

// Save writes content as a new artifact for hostname and returns its path.
// Existing artifacts are never overwritten.
func (s *Store) Save(hostname string, ts time.Time, content string) (string, error) {
	dir := filepath.Join(s.root, SanitizeName(hostname))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", errors.Wrap(model.ErrStorage, "create device directory: "+err.Error())
	}

	base := strings.TrimSuffix(Filename(hostname, ts), fileSuffix)

	for n := 1; ; n++ {
		name := base + fileSuffix
		if n > 1 {
			name = fmt.Sprintf("%s_%d%s", base, n, fileSuffix)
		}

		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if os.IsExist(err) {
			continue
		}

		if err != nil {
			return "", errors.Wrap(model.ErrStorage, "create artifact: "+err.Error())
		}

		if _, err := io.WriteString(f, content); err != nil {
			f.Close()
			os.Remove(path)

			return "", errors.Wrap(model.ErrStorage, "write artifact: "+err.Error())
		}

		if err := f.Close(); err != nil {
			return "", errors.Wrap(model.ErrStorage, "close artifact: "+err.Error())
		}

		s.logger.WithFields(logrus.Fields{"hostname": hostname, "path": path, "bytes": len(content)}).Debug("artifact saved")

		return path, nil
	}
}

// List returns the artifacts of hostname, newest first.
func (s *Store) List(hostname string) ([]Entry, error) {
	dir := filepath.Join(s.root, SanitizeName(hostname))

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}

		return nil, errors.Wrap(model.ErrStorage, "list artifacts: "+err.Error())
	}

	entries := make([]Entry, 0, len(dirEntries))

	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileSuffix) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}

		entries = append(entries, Entry{
			Filename: de.Name(),
			Path:     filepath.Join(dir, de.Name()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}

	// the timestamp in the name sorts lexically
	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename > entries[j].Filename })

	return entries, nil
}

// resolve returns the absolute form of path, relative paths are taken
// relative to the store root. Paths resolving outside the root fail with
// model.ErrPathViolation.
func (s *Store) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}

	abs := filepath.Clean(path)

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Wrap(model.ErrPathViolation, path)
	}

	return abs, nil
}

// Read returns the content of the artifact at path.
func (s *Store) Read(path string) ([]byte, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrap(model.ErrStorage, "read artifact: "+err.Error())
	}

	return b, nil
}

// Delete removes the artifact at path.
func (s *Store) Delete(path string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return errors.Wrap(model.ErrStorage, "stat artifact: "+err.Error())
	}

	if info.IsDir() {
		return errors.Wrap(model.ErrStorage, "not an artifact: "+path)
	}

	if err := os.Remove(abs); err != nil {
		return errors.Wrap(model.ErrStorage, "delete artifact: "+err.Error())
	}

	s.logger.WithField("path", abs).Info("artifact deleted")

	return nil
}

// Export writes a zip archive of every artifact of hostname to w and
// returns the number of files archived.
func (s *Store) Export(hostname string, w io.Writer) (int, error) {
	entries, err := s.List(hostname)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)

	for _, e := range entries {
		if err := addToZip(zw, e); err != nil {
			zw.Close()
			return 0, err
		}
	}

	if err := zw.Close(); err != nil {
		return 0, errors.Wrap(model.ErrStorage, "finish archive: "+err.Error())
	}

	return len(entries), nil
}

func addToZip(zw *zip.Writer, e Entry) error {
	f, err := os.Open(e.Path)
	if err != nil {
		return errors.Wrap(model.ErrStorage, "open artifact: "+err.Error())
	}
	defer f.Close()

	hdr := &zip.FileHeader{Name: e.Filename, Method: zip.Deflate, Modified: e.ModTime}

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.Wrap(model.ErrStorage, "archive entry: "+err.Error())
	}

	if _, err := io.Copy(fw, f); err != nil {
		return errors.Wrap(model.ErrStorage, "archive copy: "+err.Error())
	}

	return nil
}
