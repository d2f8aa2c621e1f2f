/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"io"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/spf13/afero"
)

const maxImageBytes = 2 << 20

var imageExtensions = map[string]string{
	"image/gif":  ".gif",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageStore holds uploaded question images, named by uuid so uploads can
// never collide or escape the directory.
type ImageStore struct {
	fs afero.Fs
}

func newImageStore(fs afero.Fs) (*ImageStore, error) {
	if err := fs.MkdirAll(".", 0o755); err != nil {
		return nil, err
	}
	return &ImageStore{fs: fs}, nil
}

func (is *ImageStore) save(data []byte) (string, error) {
	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", errUnsupportedImage
	}

	name := uuid.NewString() + ext
	if err := afero.WriteFile(is.fs, name, data, 0o644); err != nil {
		return "", err
	}

	return name, nil
}

func (is *ImageStore) load(name string) ([]byte, error) {
	if name == "" || path.Base(name) != name {
		return nil, errImageNotFound
	}

	return afero.ReadFile(is.fs, name)
}

func serveUploadImage(cfg *Config, is *ImageStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "badRequest"})
			return
		}

		file, _, err := r.FormFile("image")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "badRequest"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		if err != nil || len(data) > maxImageBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "tooLarge"})
			return
		}

		name, err := is.save(data)
		if err != nil {
			writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "unsupportedType"})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"image": name,
			"url":   cfg.prefix + "/images/" + name,
		})

		logf(cfg, "SERVE: Image %s (%s) from %s in %s",
			name,
			humanReadableSize(int64(len(data))),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveImage(cfg *Config, is *ImageStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		data, err := is.load(ps.ByName("name"))
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(data)
	}
}
