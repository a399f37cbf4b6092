// internal/ingest/ingest_test.go
package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "rfp-pipeline/internal/common/errors"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/mailbox"
	"rfp-pipeline/internal/models"
)

type fakeSaver struct {
	failOn map[string]string // filename -> error text
}

func (f *fakeSaver) Save(ctx context.Context, content []byte, filename, contentType string) models.AttachmentMeta {
	meta := models.AttachmentMeta{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
	}
	if msg, ok := f.failOn[filename]; ok {
		meta.Error = msg
		return meta
	}
	url := "https://bucket.s3.us-east-1.amazonaws.com/attachments/" + filename
	meta.StorageURL = &url
	return meta
}

type fakeWriter struct {
	inserted       []*models.Proposal
	attachmentRows []models.AttachmentMeta
	insertErr      error
	attachmentErr  error
}

func (f *fakeWriter) Insert(ctx context.Context, p *models.Proposal) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, p)
	return fmt.Sprintf("proposal-%d", len(f.inserted)), nil
}

func (f *fakeWriter) InsertAttachment(ctx context.Context, proposalID string, meta models.AttachmentMeta) error {
	if f.attachmentErr != nil {
		return f.attachmentErr
	}
	f.attachmentRows = append(f.attachmentRows, meta)
	return nil
}

type fakeDispatcher struct {
	enqueued []string
	err      error
	dup      bool
}

func (f *fakeDispatcher) EnqueueParse(ctx context.Context, queue, proposalID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.enqueued = append(f.enqueued, proposalID)
	return !f.dup, nil
}

func matchedEmail() *mailbox.ParsedEmail {
	return &mailbox.ParsedEmail{
		From: "vendor@acme.example",
		Date: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Attachments: []mailbox.IncomingAttachment{
			{Filename: "proposal.pdf", ContentType: "application/pdf", Content: []byte("pdf")},
			{Filename: "pricing.xlsx", ContentType: "application/vnd.ms-excel", Content: []byte("xlsx")},
		},
	}
}

func testLink() *models.CorrespondenceLink {
	return &models.CorrespondenceLink{ID: "link-1", RFPID: "rfp-1", VendorID: "vendor-1"}
}

func TestIngestMatched(t *testing.T) {
	writer := &fakeWriter{}
	dispatcher := &fakeDispatcher{}
	ing := NewIngestor(&fakeSaver{}, writer, dispatcher, "parse-proposals", logger.NewNoOpLogger())

	id, err := ing.IngestMatched(context.Background(), testLink(), matchedEmail(), "raw source")
	require.NoError(t, err)
	assert.Equal(t, "proposal-1", id)

	require.Len(t, writer.inserted, 1)
	p := writer.inserted[0]
	assert.Equal(t, "rfp-1", p.RFPID)
	assert.Equal(t, "vendor-1", p.VendorID)
	assert.Equal(t, "raw source", p.RawEmail)
	require.Len(t, p.RawAttachments, 2)
	assert.Equal(t, "proposal.pdf", p.RawAttachments[0].Filename)
	assert.Equal(t, "pricing.xlsx", p.RawAttachments[1].Filename)

	assert.Len(t, writer.attachmentRows, 2)
	assert.Equal(t, []string{"proposal-1"}, dispatcher.enqueued)
}

func TestIngestMatchedDegradedAttachment(t *testing.T) {
	saver := &fakeSaver{failOn: map[string]string{"proposal.pdf": "bucket unavailable"}}
	writer := &fakeWriter{}
	ing := NewIngestor(saver, writer, &fakeDispatcher{}, "parse-proposals", logger.NewNoOpLogger())

	_, err := ing.IngestMatched(context.Background(), testLink(), matchedEmail(), "raw source")
	require.NoError(t, err)

	// The failed attachment keeps its slot with the error recorded.
	require.Len(t, writer.inserted, 1)
	metas := writer.inserted[0].RawAttachments
	require.Len(t, metas, 2)
	assert.Nil(t, metas[0].StorageURL)
	assert.Equal(t, "bucket unavailable", metas[0].Error)
	assert.NotNil(t, metas[1].StorageURL)
}

func TestIngestMatchedAttachmentRowFailureDoesNotAbort(t *testing.T) {
	writer := &fakeWriter{attachmentErr: fmt.Errorf("constraint violation")}
	dispatcher := &fakeDispatcher{}
	ing := NewIngestor(&fakeSaver{}, writer, dispatcher, "parse-proposals", logger.NewNoOpLogger())

	id, err := ing.IngestMatched(context.Background(), testLink(), matchedEmail(), "raw source")
	require.NoError(t, err)
	assert.Equal(t, "proposal-1", id)
	assert.Equal(t, []string{"proposal-1"}, dispatcher.enqueued)
}

func TestIngestMatchedInsertFailure(t *testing.T) {
	writer := &fakeWriter{insertErr: fmt.Errorf("connection refused")}
	dispatcher := &fakeDispatcher{}
	ing := NewIngestor(&fakeSaver{}, writer, dispatcher, "parse-proposals", logger.NewNoOpLogger())

	_, err := ing.IngestMatched(context.Background(), testLink(), matchedEmail(), "raw source")
	require.Error(t, err)
	assert.True(t, commonerrors.IsRetryable(err))
	assert.Empty(t, dispatcher.enqueued)
}

func TestIngestMatchedEnqueueFailure(t *testing.T) {
	dispatcher := &fakeDispatcher{err: fmt.Errorf("redis down")}
	ing := NewIngestor(&fakeSaver{}, &fakeWriter{}, dispatcher, "parse-proposals", logger.NewNoOpLogger())

	_, err := ing.IngestMatched(context.Background(), testLink(), matchedEmail(), "raw source")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeInfrastructureFailure, commonerrors.CodeOf(err))
}

func TestIngestMatchedDuplicateEnqueueIsFine(t *testing.T) {
	dispatcher := &fakeDispatcher{dup: true}
	ing := NewIngestor(&fakeSaver{}, &fakeWriter{}, dispatcher, "parse-proposals", logger.NewNoOpLogger())

	id, err := ing.IngestMatched(context.Background(), testLink(), matchedEmail(), "raw source")
	require.NoError(t, err)
	assert.Equal(t, "proposal-1", id)
}
