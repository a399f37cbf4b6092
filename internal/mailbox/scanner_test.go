// internal/mailbox/scanner_test.go
package mailbox

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "rfp-pipeline/internal/common/errors"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/models"
)

type fakeClient struct {
	mu        sync.Mutex
	uids      []uint32
	sources   map[uint32][]byte
	seen      []uint32
	searchErr error
	fetchErr  map[uint32]error

	searchStarted chan struct{}
	searchRelease chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		sources:  make(map[uint32][]byte),
		fetchErr: make(map[uint32]error),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }
func (f *fakeClient) Usable() bool                      { return true }
func (f *fakeClient) Close() error                      { return nil }

func (f *fakeClient) Lock() func() {
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeClient) SearchUnseenSince(ctx context.Context, since time.Time) ([]uint32, error) {
	if f.searchStarted != nil {
		close(f.searchStarted)
		f.searchStarted = nil
	}
	if f.searchRelease != nil {
		<-f.searchRelease
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.uids, nil
}

func (f *fakeClient) FetchSource(ctx context.Context, uid uint32) ([]byte, error) {
	if err := f.fetchErr[uid]; err != nil {
		return nil, err
	}
	src, ok := f.sources[uid]
	if !ok {
		return nil, fmt.Errorf("message %d not found", uid)
	}
	return src, nil
}

func (f *fakeClient) MarkSeen(ctx context.Context, uid uint32) error {
	f.seen = append(f.seen, uid)
	return nil
}

func (f *fakeClient) WaitUpdate(ctx context.Context, timeout time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
	}
}

type fakeMatcher struct {
	links map[string]*models.CorrespondenceLink
	err   error
}

func (f *fakeMatcher) Match(ctx context.Context, email *ParsedEmail) (*models.CorrespondenceLink, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	link, ok := f.links[email.MessageID]
	if !ok {
		return nil, "", commonerrors.ErrNoMatch
	}
	return link, "explicit-header", nil
}

type fakeIngestor struct {
	mu       sync.Mutex
	ingested []string
	err      error
}

func (f *fakeIngestor) IngestMatched(ctx context.Context, link *models.CorrespondenceLink, email *ParsedEmail, rawSource string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, email.MessageID)
	return fmt.Sprintf("proposal-%d", len(f.ingested)), nil
}

func testMessage(id string) []byte {
	return []byte("From: vendor@acme.example\r\n" +
		"Subject: proposal\r\n" +
		"Message-Id: <" + id + ">\r\n" +
		"\r\n" +
		"body\r\n")
}

func newTestScanner(client Client, matcher Matcher, ingestor Ingestor, cfg ScannerConfig) *Scanner {
	return NewScanner(client, matcher, ingestor, cfg, logger.NewNoOpLogger())
}

func TestScanIngestsMatchedMessage(t *testing.T) {
	client := newFakeClient()
	client.uids = []uint32{7}
	client.sources[7] = testMessage("m1@acme.example")

	matcher := &fakeMatcher{links: map[string]*models.CorrespondenceLink{
		"m1@acme.example": {RFPID: "rfp-1", VendorID: "vendor-1"},
	}}
	ingestor := &fakeIngestor{}

	s := newTestScanner(client, matcher, ingestor, ScannerConfig{})
	require.NoError(t, s.Scan(context.Background()))

	assert.Equal(t, []string{"m1@acme.example"}, ingestor.ingested)
	assert.Equal(t, []uint32{7}, client.seen)
}

func TestScanLeavesUnmatchedMessagesUnseen(t *testing.T) {
	client := newFakeClient()
	client.uids = []uint32{1, 2}
	client.sources[1] = testMessage("unknown@acme.example")
	client.sources[2] = testMessage("m2@acme.example")

	matcher := &fakeMatcher{links: map[string]*models.CorrespondenceLink{
		"m2@acme.example": {RFPID: "rfp-2", VendorID: "vendor-2"},
	}}
	ingestor := &fakeIngestor{}

	s := newTestScanner(client, matcher, ingestor, ScannerConfig{})
	require.NoError(t, s.Scan(context.Background()))

	// The unmatched message stays unseen for later correspondence rows.
	assert.Equal(t, []string{"m2@acme.example"}, ingestor.ingested)
	assert.Equal(t, []uint32{2}, client.seen)
}

func TestScanStopsAfterMaxMatches(t *testing.T) {
	client := newFakeClient()
	client.uids = []uint32{1, 2, 3}
	links := make(map[string]*models.CorrespondenceLink)
	for i := uint32(1); i <= 3; i++ {
		id := fmt.Sprintf("m%d@acme.example", i)
		client.sources[i] = testMessage(id)
		links[id] = &models.CorrespondenceLink{RFPID: "rfp-1", VendorID: fmt.Sprintf("vendor-%d", i)}
	}
	ingestor := &fakeIngestor{}

	s := newTestScanner(client, &fakeMatcher{links: links}, ingestor, ScannerConfig{MaxMatchesPerCycle: 1})
	require.NoError(t, s.Scan(context.Background()))

	assert.Len(t, ingestor.ingested, 1)
	assert.Len(t, client.seen, 1)
}

func TestScanPerMessageFailureDoesNotAbortCycle(t *testing.T) {
	client := newFakeClient()
	client.uids = []uint32{1, 2}
	client.fetchErr[1] = fmt.Errorf("fetch blew up")
	client.sources[2] = testMessage("m2@acme.example")

	matcher := &fakeMatcher{links: map[string]*models.CorrespondenceLink{
		"m2@acme.example": {RFPID: "rfp-1", VendorID: "vendor-2"},
	}}
	ingestor := &fakeIngestor{}

	s := newTestScanner(client, matcher, ingestor, ScannerConfig{})
	require.NoError(t, s.Scan(context.Background()))

	assert.Equal(t, []string{"m2@acme.example"}, ingestor.ingested)
}

func TestScanIngestFailureLeavesMessageUnseen(t *testing.T) {
	client := newFakeClient()
	client.uids = []uint32{9}
	client.sources[9] = testMessage("m9@acme.example")

	matcher := &fakeMatcher{links: map[string]*models.CorrespondenceLink{
		"m9@acme.example": {RFPID: "rfp-9", VendorID: "vendor-9"},
	}}
	ingestor := &fakeIngestor{err: fmt.Errorf("database down")}

	s := newTestScanner(client, matcher, ingestor, ScannerConfig{})
	require.NoError(t, s.Scan(context.Background()))

	assert.Empty(t, client.seen)
}

func TestScanRespectsBatchLimit(t *testing.T) {
	client := newFakeClient()
	for i := uint32(1); i <= 5; i++ {
		client.uids = append(client.uids, i)
		client.sources[i] = testMessage(fmt.Sprintf("m%d@acme.example", i))
	}
	ingestor := &fakeIngestor{}

	// Nothing matches, so every examined message falls through; the batch
	// size caps how many get examined at all.
	s := newTestScanner(client, &fakeMatcher{links: nil}, ingestor, ScannerConfig{BatchSize: 3, MaxMatchesPerCycle: 10})
	require.NoError(t, s.Scan(context.Background()))

	assert.Empty(t, ingestor.ingested)
	assert.Empty(t, client.seen)
}

func TestScanSearchFailureIsTransient(t *testing.T) {
	client := newFakeClient()
	client.searchErr = fmt.Errorf("connection reset")

	s := newTestScanner(client, &fakeMatcher{}, &fakeIngestor{}, ScannerConfig{})
	err := s.Scan(context.Background())
	require.Error(t, err)
	assert.True(t, commonerrors.IsRetryable(err))
}

func TestScanIsSingleFlight(t *testing.T) {
	client := newFakeClient()
	client.searchStarted = make(chan struct{})
	client.searchRelease = make(chan struct{})

	s := newTestScanner(client, &fakeMatcher{}, &fakeIngestor{}, ScannerConfig{})

	done := make(chan error, 1)
	go func() {
		done <- s.Scan(context.Background())
	}()

	<-client.searchStarted
	assert.True(t, s.Scanning())

	// A trigger arriving mid-scan is dropped, not queued.
	require.NoError(t, s.Scan(context.Background()))

	close(client.searchRelease)
	require.NoError(t, <-done)
	assert.False(t, s.Scanning())
}
