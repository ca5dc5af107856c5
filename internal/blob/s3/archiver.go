package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/syntheticfi/boxloan/internal/domain"
)

// blobWriter is the narrow upload interface the archiver needs.
type blobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver implements domain.PayloadArchiver by writing raw broker
// payloads and contract snapshots to object storage. Payloads are kept
// verbatim so a reconciliation bug can be replayed against the original
// capture.
type Archiver struct {
	writer blobWriter
	now    func() time.Time
}

// NewArchiver creates an Archiver on top of a Writer.
func NewArchiver(writer blobWriter) *Archiver {
	return &Archiver{writer: writer, now: time.Now}
}

// ArchivePayload stores one raw broker capture under
// payloads/{broker}/{RFC3339 timestamp}.json.
func (a *Archiver) ArchivePayload(ctx context.Context, broker domain.Broker, payload []byte) error {
	path := fmt.Sprintf("payloads/%s/%s.json", broker, a.now().UTC().Format("2006-01-02T15-04-05Z"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive %s payload: %w", broker, err)
	}
	return nil
}

// ArchiveSnapshot stores a contract snapshot under
// contracts/{date}.json, one object per refresh day.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, snap domain.ContractSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: marshal contract snapshot: %w", err)
	}
	path := fmt.Sprintf("contracts/%s.json", snap.FetchedAt.UTC().Format("2006-01-02"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive contract snapshot: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PayloadArchiver = (*Archiver)(nil)
