// Handles photo upload and display serving.

package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maruel/placedb/internal/photo"
	"github.com/maruel/placedb/internal/server/dto"
	"github.com/maruel/placedb/internal/server/reqctx"
)

// UploadPhotoHandler accepts a photo upload (multipart/form-data field
// "photo", or a raw image body) and returns the assigned blob key.
// This is a raw http.HandlerFunc because it handles multipart forms.
func (h *Handlers) UploadPhotoHandler(maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		}

		data, apiErr := readUpload(r)
		if apiErr != nil {
			writeAPIError(w, apiErr)
			return
		}

		key, err := h.photos.Put(data)
		if err != nil {
			switch {
			case errors.Is(err, photo.ErrImageDecode):
				writeAPIError(w, dto.ImageDecode(err))
			default:
				writeAPIError(w, dto.BlobStore(err))
			}
			return
		}
		writeJSONResponse(r.Context(), w, &dto.UploadPhotoResponse{Key: key}, nil)
	}
}

// readUpload extracts the image bytes from a multipart form or raw body.
func readUpload(r *http.Request) ([]byte, *dto.APIError) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(10 << 20); err != nil { // 10 MB in memory
			if maxBytesErr := checkMaxBytesError(err); maxBytesErr != nil {
				return nil, dto.PayloadTooLarge(maxBytesErr.Limit)
			}
			return nil, dto.BadRequest("invalid multipart form")
		}
		file, _, err := r.FormFile("photo")
		if err != nil {
			return nil, dto.MissingField("photo")
		}
		defer func() {
			if err := file.Close(); err != nil {
				slog.Error("Failed to close uploaded file", "error", err)
			}
		}()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, dto.Internal("failed to read upload")
		}
		return data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		if maxBytesErr := checkMaxBytesError(err); maxBytesErr != nil {
			return nil, dto.PayloadTooLarge(maxBytesErr.Limit)
		}
		return nil, dto.Internal("failed to read upload")
	}
	if len(data) == 0 {
		return nil, dto.MissingField("photo")
	}
	return data, nil
}

// ServeDisplayHandler serves a leased display handle by token. Released or
// unknown tokens are 404.
func (h *Handlers) ServeDisplayHandler(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	handle, ok := h.photos.Lookup(token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", handle.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(handle.Bytes())
}

// rateLimited guards a raw handler with the mutating-route rate limit.
func (h *Handlers) rateLimited(wc wrapConfig, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !checkRateLimit(w, wc.limiter, reqctx.GetClientIP(r)) {
			return
		}
		next(w, r)
	}
}

// writeAPIError writes an APIError as the standard JSON error response.
func writeAPIError(w http.ResponseWriter, apiErr *dto.APIError) {
	writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
}
