package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mevshield/mevwatch/internal/domain"
)

// multipartCutoff is the archive size above which the multipart uploader is
// used instead of a single PutObject.
const multipartCutoff = 8 * 1024 * 1024

// Archiver implements domain.Archiver: aged opportunity rows are serialized
// to JSONL, uploaded to object storage partitioned by year-month, and then
// pruned from the primary store. The delete runs only after a successful
// upload, so a failed archive never loses rows.
type Archiver struct {
	writer *Writer
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer *Writer, store domain.OpportunityStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities moves all opportunities detected before the cutoff to
// cold storage and returns how many were archived.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath(before)
	if len(buf) > multipartCutoff {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(opps)), fmt.Errorf("s3blob: archive opportunities prune: %w", err)
	}

	a.logger.Info("opportunities archived",
		slog.String("path", path),
		slog.Int("archived", len(opps)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(opps)), nil
}

// Run archives on a fixed schedule until ctx is cancelled, keeping only the
// trailing retention window in the primary store.
func (a *Archiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("archiver started",
		slog.Duration("interval", interval),
		slog.Duration("retention", retention),
	)
	defer a.logger.Info("archiver stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			if _, err := a.ArchiveOpportunities(ctx, cutoff); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time:
//
//	archive/opportunities/2026-08.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/opportunities/%s.jsonl", before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
