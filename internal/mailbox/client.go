// internal/mailbox/client.go
package mailbox

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"rfp-pipeline/internal/common/config"
	"rfp-pipeline/internal/common/logger"
)

// Client is the narrow mailbox surface the scanner depends on. The
// concrete implementation wraps an IMAP connection; tests substitute a
// fake.
type Client interface {
	Connect(ctx context.Context) error
	Usable() bool
	// Lock takes the exclusive mailbox lock and returns its release
	// function. Callers must release on every exit path.
	Lock() (release func())
	SearchUnseenSince(ctx context.Context, since time.Time) ([]uint32, error)
	FetchSource(ctx context.Context, uid uint32) ([]byte, error)
	MarkSeen(ctx context.Context, uid uint32) error
	// WaitUpdate blocks until the server signals new mail, the timeout
	// elapses, or ctx is cancelled. It is the push half of the scan
	// trigger; the timeout doubles as the poll fallback.
	WaitUpdate(ctx context.Context, timeout time.Duration)
	Close() error
}

// IMAPClient implements Client over a single IMAP connection. Mailbox
// commands are serialized through the lock, so one connection is enough.
type IMAPClient struct {
	cfg config.MailboxConfig
	log logger.Logger

	mu      sync.Mutex
	cli     *imapclient.Client
	updates chan struct{}
}

func NewIMAPClient(cfg config.MailboxConfig, log logger.Logger) *IMAPClient {
	return &IMAPClient{
		cfg:     cfg,
		log:     log,
		updates: make(chan struct{}, 1),
	}
}

func (c *IMAPClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cli != nil {
		c.cli.Close()
		c.cli = nil
	}

	opts := &imapclient.Options{
		Dialer: &net.Dialer{Timeout: time.Duration(c.cfg.Timeout) * time.Millisecond},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				select {
				case c.updates <- struct{}{}:
				default:
				}
			},
		},
	}

	var (
		cli *imapclient.Client
		err error
	)
	if c.cfg.TLS {
		cli, err = imapclient.DialTLS(c.cfg.Address(), opts)
	} else {
		cli, err = imapclient.DialInsecure(c.cfg.Address(), opts)
	}
	if err != nil {
		return fmt.Errorf("failed to dial mailbox %s: %w", c.cfg.Address(), err)
	}

	if err := cli.Login(c.cfg.User, c.cfg.Password).Wait(); err != nil {
		cli.Close()
		return fmt.Errorf("mailbox login failed for %s: %w", c.cfg.User, err)
	}

	if _, err := cli.Select(c.cfg.Folder, nil).Wait(); err != nil {
		cli.Close()
		return fmt.Errorf("failed to select folder %s: %w", c.cfg.Folder, err)
	}

	c.cli = cli
	c.log.Info("Mailbox connection established", map[string]interface{}{
		"host":   c.cfg.Host,
		"folder": c.cfg.Folder,
	})
	return nil
}

func (c *IMAPClient) Usable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cli != nil && c.cli.State() == imap.ConnStateSelected
}

func (c *IMAPClient) Lock() func() {
	c.mu.Lock()
	return c.mu.Unlock
}

// SearchUnseenSince returns UIDs of unseen messages received on or after
// since. Callers must hold the mailbox lock.
func (c *IMAPClient) SearchUnseenSince(ctx context.Context, since time.Time) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.cli == nil {
		return nil, fmt.Errorf("mailbox connection not established")
	}

	criteria := &imap.SearchCriteria{
		Since:   since,
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := c.cli.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("mailbox search failed: %w", err)
	}

	raw := data.AllUIDs()
	uids := make([]uint32, 0, len(raw))
	for _, uid := range raw {
		uids = append(uids, uint32(uid))
	}
	return uids, nil
}

func (c *IMAPClient) FetchSource(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.cli == nil {
		return nil, fmt.Errorf("mailbox connection not established")
	}

	section := &imap.FetchItemBodySection{}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}
	msgs, err := c.cli.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %d not found", uid)
	}

	body := msgs[0].FindBodySection(section)
	if len(body) == 0 {
		return nil, fmt.Errorf("message %d has no body section", uid)
	}
	return body, nil
}

func (c *IMAPClient) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.cli == nil {
		return fmt.Errorf("mailbox connection not established")
	}

	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	if err := c.cli.Store(imap.UIDSetNum(imap.UID(uid)), storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("failed to mark message %d seen: %w", uid, err)
	}
	return nil
}

func (c *IMAPClient) WaitUpdate(ctx context.Context, timeout time.Duration) {
	// Drain a pending notification first so updates raised during the
	// previous scan trigger an immediate cycle instead of being lost.
	select {
	case <-c.updates:
		return
	default:
	}

	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if cli == nil || cli.State() != imap.ConnStateSelected {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		return
	}

	idle, err := cli.Idle()
	if err != nil {
		c.log.Warn("Mailbox IDLE unavailable, falling back to polling", map[string]interface{}{
			"error": err.Error(),
		})
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		return
	}
	defer func() {
		idle.Close()
		idle.Wait()
	}()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-c.updates:
	}
}

func (c *IMAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli == nil {
		return nil
	}
	err := c.cli.Close()
	c.cli = nil
	return err
}
