package server

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cephview/cephview/pkg/assets"
)

// staticHandler serves the viewer's assets from a directory. Requests for
// "/" or a directory serve its index.html. Files named as fingerprinted
// outputs in the bundle's manifest are served as immutable.
type staticHandler struct {
	fsys     fs.FS
	manifest *assets.Manifest
}

func newStaticHandler(dir string, logger *slog.Logger) *staticHandler {
	fsys := os.DirFS(dir)
	manifest, err := assets.Load(fsys)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("ignoring asset manifest", "dir", dir, "error", err)
		}
		manifest = assets.NewManifest()
	}
	return &staticHandler{fsys: fsys, manifest: manifest}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	rel, ok := staticRelPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := h.fsys.Open(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		f.Close()
		rel = path.Join(rel, "index.html")
		if f, err = h.fsys.Open(rel); err != nil {
			http.NotFound(w, r)
			return
		}
		info, err = f.Stat()
	}
	defer f.Close()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case h.manifest.Fingerprinted(rel):
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	case strings.HasSuffix(rel, ".html"):
		w.Header().Set("Cache-Control", "no-cache")
	default:
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, path.Base(rel), info.ModTime(), rs)
}

// staticRelPath returns a sanitized relative path for a static request.
// It rejects traversal and absolute-path tricks so static serving cannot
// escape the configured directory. "/" maps to ".".
func staticRelPath(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(urlPath, "/")
	if rel == "" {
		return ".", true
	}

	// Reject NUL early (can appear via %00).
	if strings.IndexByte(rel, 0) != -1 {
		return "", false
	}

	// Reject platform-dependent separators.
	if strings.Contains(rel, "\\") {
		return "", false
	}

	// A remaining leading "/" is an absolute-path attempt ("//etc/passwd").
	if strings.HasPrefix(rel, "/") {
		return "", false
	}

	// Reject dot-segments before cleaning so traversal attempts are not
	// cleaned into something that looks legitimate.
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}

	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}
	if !fs.ValidPath(clean) {
		return "", false
	}

	return clean, true
}
