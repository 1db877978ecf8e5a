package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/service"
)

const maxPhotoSize = 50 * 1024 * 1024 // 50 MB

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG and GIF via magic-byte
// sniffing. WebP and HEIC are detected separately because the WHATWG
// sniffing algorithm does not include their signatures.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// heicBrands are the ISO-BMFF major brands phone cameras write for HEIC
// stills.
var heicBrands = map[string]bool{
	"heic": true,
	"heix": true,
	"mif1": true,
}

// isHEIC reports whether data starts with an ftyp box whose major brand is a
// HEIC brand.
func isHEIC(data []byte) bool {
	return len(data) >= 12 &&
		string(data[4:8]) == "ftyp" &&
		heicBrands[string(data[8:12])]
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	if isHEIC(data) {
		return "image/heic", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collection(w, r)
	if !ok {
		return
	}
	photo, ok := s.readImage(w, r)
	if !ok {
		return
	}

	rec, err := s.records.AttachPhoto(r.Context(), r.PathValue("owner"), collection, r.PathValue("id"), photo.Data, photo.MimeType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, s.logger)
}

func (s *Server) handleUploadProfilePhoto(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	photo, ok := s.readImage(w, r)
	if !ok {
		return
	}

	// The profile id is the owner id; attaching creates the profile if needed.
	rec, err := s.records.AttachPhoto(r.Context(), owner, domain.CollectionProfile, owner, photo.Data, photo.MimeType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, s.logger)
}

// handleGetAsset serves a photo that has not been synced yet.
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	localPath := owner + "/" + r.PathValue("category") + "/" + r.PathValue("file")

	reader, mimeType, err := s.records.OpenLocalPhoto(r.Context(), owner, localPath)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Warn("open asset failed", "path", localPath, "error", err)
		http.NotFound(w, r)
		return
	}
	defer closeWithLog(reader, "asset reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write asset failed", "path", localPath, "error", err)
	}
}

// readImage parses the multipart "image" field. It writes the error response
// itself and reports false when the request is unusable.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (*service.Photo, bool) {
	photo, ok := s.readOptionalImage(w, r)
	if ok && photo == nil {
		s.badRequest(w, "image file required")
		return nil, false
	}
	return photo, ok
}

// readOptionalImage is readImage for forms where the image may be absent.
func (s *Server) readOptionalImage(w http.ResponseWriter, r *http.Request) (*service.Photo, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize+maxJSONSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		s.badRequest(w, "failed to parse form")
		return nil, false
	}

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		s.badRequest(w, "failed to read image")
		return nil, false
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read file"}, s.logger)
		s.logger.Error("read upload failed", "path", r.URL.Path, "error", err)
		return nil, false
	}

	mimeType, ok := allowedImageMIME(data)
	if !ok {
		s.badRequest(w, "unsupported image format")
		return nil, false
	}
	return &service.Photo{Data: data, MimeType: mimeType}, true
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
