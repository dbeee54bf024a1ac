package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// RawArchive stores each scrape run's raw payloads as one JSON Lines object
// so a normalizer change can be replayed against what was actually fetched.
type RawArchive struct {
	w      domain.BlobWriter
	prefix string
}

// NewRawArchive creates a RawArchive writing under prefix.
func NewRawArchive(w domain.BlobWriter, prefix string) *RawArchive {
	return &RawArchive{w: w, prefix: prefix}
}

// Key returns the object key for a run:
// {prefix}/{source}/YYYY/MM/DD/{runID}.jsonl
func (a *RawArchive) Key(source, runID string, at time.Time) string {
	at = at.UTC()
	return path.Join(a.prefix, source,
		fmt.Sprintf("%04d", at.Year()), fmt.Sprintf("%02d", at.Month()), fmt.Sprintf("%02d", at.Day()),
		runID+".jsonl")
}

// Archive writes payloads, one per line, and returns the object key. Large
// runs go through a multipart upload.
func (a *RawArchive) Archive(ctx context.Context, source, runID string, at time.Time, payloads []json.RawMessage) (string, error) {
	var buf bytes.Buffer
	for _, p := range payloads {
		var line bytes.Buffer
		if err := json.Compact(&line, p); err != nil {
			return "", fmt.Errorf("s3blob: compact payload: %w", err)
		}
		buf.Write(line.Bytes())
		buf.WriteByte('\n')
	}

	key := a.Key(source, runID, at)
	var err error
	if int64(buf.Len()) > minPartSize {
		err = a.w.PutMultipart(ctx, key, &buf, minPartSize)
	} else {
		err = a.w.Put(ctx, key, &buf, "application/x-ndjson")
	}
	if err != nil {
		return "", err
	}
	return key, nil
}
