package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	heicBytes = append([]byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic"), make([]byte, 16)...)
)

func multipartRequest(t *testing.T, field string, data []byte, extra map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, "photo")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/u1/items/r1/photo", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestReadOptionalImage(t *testing.T) {
	s := &Server{logger: slog.Default()}

	tests := []struct {
		name     string
		data     []byte
		wantMIME string
	}{
		{"jpeg", jpegBytes, "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, "image/png"},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 10)...), "image/webp"},
		{"heic", heicBytes, "image/heic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			photo, ok := s.readOptionalImage(rec, multipartRequest(t, "image", tt.data, map[string]string{"name": "Milk"}))
			require.True(t, ok, rec.Body.String())
			require.NotNil(t, photo)
			assert.Equal(t, tt.wantMIME, photo.MimeType)
			assert.Equal(t, tt.data, photo.Data)
		})
	}
}

func TestReadOptionalImageMissingImage(t *testing.T) {
	s := &Server{logger: slog.Default()}

	rec := httptest.NewRecorder()
	req := multipartRequest(t, "", nil, map[string]string{"name": "Milk"})
	photo, ok := s.readOptionalImage(rec, req)
	assert.True(t, ok)
	assert.Nil(t, photo)
	assert.Equal(t, "Milk", req.FormValue("name"))

	rec = httptest.NewRecorder()
	photo, ok = s.readImage(rec, multipartRequest(t, "", nil, nil))
	assert.False(t, ok)
	assert.Nil(t, photo)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "image file required", errorMessage(t, rec))
}

func TestReadOptionalImageRejects(t *testing.T) {
	s := &Server{logger: slog.Default()}

	tests := []struct {
		name string
		data []byte
	}{
		{"pdf", []byte("%PDF-1.4 not a photo")},
		{"riff but not webp", append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 10)...)},
		{"mp4 ftyp brand", append([]byte("\x00\x00\x00\x18ftypisom"), make([]byte, 16)...)},
		{"empty", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			photo, ok := s.readOptionalImage(rec, multipartRequest(t, "image", tt.data, nil))
			assert.False(t, ok)
			assert.Nil(t, photo)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "unsupported image format", errorMessage(t, rec))
		})
	}
}

func TestReadOptionalImageNotMultipart(t *testing.T) {
	s := &Server{logger: slog.Default()}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/u1/items/r1/photo", bytes.NewReader(jpegBytes))
	req.Header.Set("Content-Type", "image/jpeg")
	_, ok := s.readOptionalImage(rec, req)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "failed to parse form", errorMessage(t, rec))
}

// zeroReader yields n zero bytes without holding them in memory.
type zeroReader struct{ n int64 }

func (z *zeroReader) Read(p []byte) (int, error) {
	if z.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > z.n {
		p = p[:z.n]
	}
	clear(p)
	z.n -= int64(len(p))
	return len(p), nil
}

func TestReadOptionalImageSizeCap(t *testing.T) {
	s := &Server{logger: slog.Default()}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fw, err := mw.CreateFormFile("image", "huge.jpg")
		if err == nil {
			_, err = fw.Write(jpegBytes)
		}
		if err == nil {
			_, err = io.Copy(fw, &zeroReader{n: maxPhotoSize + maxJSONSize})
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	t.Cleanup(func() { _ = pr.Close() })

	req := httptest.NewRequest(http.MethodPost, "/api/u1/items/r1/photo", pr)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	photo, ok := s.readOptionalImage(rec, req)
	assert.False(t, ok)
	assert.Nil(t, photo)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "failed to parse form", errorMessage(t, rec))
}

func TestAllowedImageMIMEHEICBrands(t *testing.T) {
	for _, brand := range []string{"heic", "heix", "mif1"} {
		data := append([]byte("\x00\x00\x00\x18ftyp"+brand), make([]byte, 12)...)
		mime, ok := allowedImageMIME(data)
		assert.True(t, ok, brand)
		assert.Equal(t, "image/heic", mime, brand)
	}
	_, ok := allowedImageMIME([]byte("\x00\x00\x00\x18ftyp"))
	assert.False(t, ok)
}
