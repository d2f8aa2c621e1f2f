package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Enough of a PNG for content-type sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestImageStoreRoundTrip(t *testing.T) {
	store, err := newImageStore(afero.NewMemMapFs())
	require.NoError(t, err)

	name, err := store.save(pngHeader)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".png"), "got %q", name)

	data, err := store.load(name)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	_, err = store.save([]byte("definitely not an image"))
	assert.ErrorIs(t, err, errUnsupportedImage)

	for _, name := range []string{"", "../etc/passwd", "a/b.png"} {
		_, err := store.load(name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestUploadImageHandler(t *testing.T) {
	cfg := testConfig()

	store, err := newImageStore(afero.NewMemMapFs())
	require.NoError(t, err)

	mux := httprouter.New()
	mux.POST("/api/images", serveUploadImage(cfg, store))
	mux.GET("/images/:name", serveImage(cfg, store))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "question.png")
	require.NoError(t, err)
	_, err = part.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"url":"/images/`)

	resp := w.Body.String()
	start := strings.Index(resp, `"image":"`) + len(`"image":"`)
	name := resp[start : start+strings.Index(resp[start:], `"`)]

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/"+name, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", http.DetectContentType(w.Body.Bytes()))

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
