package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mevshield/mevwatch/internal/domain"
)

// archivePrefix scopes listing and retrieval to the archiver's key space.
const archivePrefix = "archive/"

// ArchivesHandler serves the cold-storage archive files written by the
// archiver, so operators can pull aged opportunity history without S3
// credentials of their own.
type ArchivesHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchivesHandler creates an ArchivesHandler.
func NewArchivesHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchivesHandler {
	return &ArchivesHandler{blobs: blobs, logger: logger}
}

// archiveEntry is the wire shape of one listed archive file.
type archiveEntry struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListArchives returns metadata for every stored archive file.
// GET /api/archives
func (h *ArchivesHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.blobs.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	entries := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, archiveEntry{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": entries})
}

// GetArchive streams one archive file.
// GET /api/archives/{path...}
func (h *ArchivesHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if path == "" || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}

	body, err := h.blobs.Get(r.Context(), archivePrefix+path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
