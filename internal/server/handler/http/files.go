package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/atinyakov/DocLedger/internal/content"
	"github.com/atinyakov/DocLedger/internal/models"
	"go.uber.org/zap"
)

// ContentService stores uploaded document bytes.
type ContentService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (content.Upload, error)
}

// FileHandler accepts document uploads.
type FileHandler struct {
	Content ContentService
	Logger  *zap.Logger
}

// multipart framing allowance on top of the file size limit
const uploadOverhead = 1 << 20

// Upload stores the multipart "file" field and returns its content id and hash.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, content.MaxUploadSize+uploadOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.Logger, r, fmt.Errorf("%w: file exceeds %d bytes", models.ErrInvalidInput, content.MaxUploadSize))
			return
		}
		writeError(w, h.Logger, r, fmt.Errorf("%w: multipart field \"file\" is required", models.ErrInvalidInput))
		return
	}
	defer file.Close()

	up, err := h.Content.Upload(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}
