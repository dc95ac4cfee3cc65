package upload

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	cverrors "github.com/cephview/cephview/internal/errors"
)

// Response is the JSON body returned by the upload handler.
type Response struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Handler returns an http.Handler that accepts a multipart form with a
// "file" field and stores it. Failures are written as JSON coded errors.
func Handler(store Store, config *Config) http.Handler {
	if config == nil {
		config = DefaultConfig()
	}
	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxFileSize
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			cverrors.WriteHTTP(w, cverrors.New("E142"))
			return
		}

		// Cap the body before parsing; multipart overhead gets 1MB of slack.
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				cverrors.WriteHTTP(w, tooLarge(maxSize))
				return
			}
			cverrors.WriteHTTP(w, cverrors.New("E132").Wrap(err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			cverrors.WriteHTTP(w, cverrors.New("E132").WithDetail("No file provided").Wrap(err))
			return
		}
		defer file.Close()

		if header.Size > maxSize {
			cverrors.WriteHTTP(w, tooLarge(maxSize))
			return
		}

		// Sniff the type from the content, never from the part header.
		sniff := make([]byte, 512)
		n, err := io.ReadFull(file, sniff)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			cverrors.WriteHTTP(w, cverrors.New("E132").WithDetail("Failed to read file").Wrap(err))
			return
		}
		sniff = sniff[:n]
		contentType := http.DetectContentType(sniff)
		if !typeAllowed(contentType, config.AllowedTypes) {
			cverrors.WriteHTTP(w, cverrors.New("E133").WithDetail("Detected type "+contentType))
			return
		}

		body := io.MultiReader(bytes.NewReader(sniff), file)
		id, err := store.Save(r.Context(), header.Filename, contentType, header.Size, body)
		if err != nil {
			if errors.Is(err, ErrTooLarge) {
				cverrors.WriteHTTP(w, tooLarge(maxSize))
				return
			}
			cverrors.WriteHTTP(w, cverrors.New("E131").Wrap(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Response{
			ID:          id,
			URL:         config.URLPrefix + id,
			ContentType: contentType,
			Size:        header.Size,
		})
	})
}

// ServeHandler returns an http.Handler that serves stored payloads. idFunc
// extracts the upload ID from the request (typically a route parameter).
// Payloads with a remote URL are served by redirect.
func ServeHandler(store Store, idFunc func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			cverrors.WriteHTTP(w, cverrors.New("E142"))
			return
		}

		f, err := store.Open(r.Context(), idFunc(r))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				cverrors.WriteHTTP(w, cverrors.New("E130").Wrap(err))
				return
			}
			cverrors.WriteHTTP(w, cverrors.New("E131").Wrap(err))
			return
		}
		defer f.Close()

		if f.URL != "" && f.Reader == nil {
			http.Redirect(w, r, f.URL, http.StatusFound)
			return
		}

		w.Header().Set("Content-Type", f.ContentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "private, max-age=3600")
		if f.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
		}
		if r.Method == http.MethodHead {
			return
		}
		io.Copy(w, f.Reader)
	})
}

func tooLarge(maxSize int64) error {
	return cverrors.New("E113").WithDetail("Uploads are limited to " + strconv.FormatInt(maxSize, 10) + " bytes")
}

func typeAllowed(contentType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	// Strip parameters such as "; charset=utf-8".
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	for _, a := range allowed {
		a = strings.ToLower(a)
		if family, ok := strings.CutSuffix(a, "/*"); ok {
			if strings.HasPrefix(contentType, family+"/") {
				return true
			}
			continue
		}
		if contentType == a {
			return true
		}
	}
	return false
}
