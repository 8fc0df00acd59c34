package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcache/pkg/types"
)

// IMAPConfig holds the connection settings for an IMAP-backed Client.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// Mailbox is the folder searched and fetched from; defaults to INBOX.
	Mailbox string
}

// IMAPClient implements Client against a plain IMAP server. Message ids are
// the mailbox UIDs rendered as decimal strings; label mutations are mapped
// onto IMAP flags.
type IMAPClient struct {
	config    IMAPConfig
	client    *client.Client
	logger    *logrus.Logger
	connected bool
	// selected is the currently selected mailbox name; fetched messages
	// are stamped with its label so folder filtering works downstream.
	selected string
}

// NewIMAPClient creates an IMAP-backed client. No connection is made until
// the first call.
func NewIMAPClient(cfg IMAPConfig, logger *logrus.Logger) *IMAPClient {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPClient{config: cfg, logger: logger}
}

// connect establishes and authenticates the connection if needed.
func (c *IMAPClient) connect() error {
	if c.connected && c.client != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: c.config.Host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrUnavailable, addr, err)
	}

	if err := cl.Login(c.config.Username, c.config.Password); err != nil {
		cl.Logout() //nolint:errcheck
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	c.client = cl
	c.connected = true
	c.logger.WithField("host", c.config.Host).Info("Connected to IMAP server")
	return nil
}

// Close logs out and drops the connection.
func (c *IMAPClient) Close() error {
	if c.client != nil {
		err := c.client.Logout()
		c.client = nil
		c.connected = false
		return err
	}
	return nil
}

// selectMailbox selects the folder a query targets. Folders without a
// dedicated mailbox fall back to the configured default.
func (c *IMAPClient) selectMailbox(folder Folder) error {
	name := c.config.Mailbox
	switch folder {
	case FolderArchive:
		name = "Archive"
	case FolderSpam:
		name = "Junk"
	case FolderTrash:
		name = "Trash"
	case FolderDrafts:
		name = "Drafts"
	case FolderSent:
		name = "Sent"
	}
	if _, err := c.client.Select(name, false); err != nil {
		return fmt.Errorf("failed to select mailbox %s: %w", name, err)
	}
	c.selected = name
	return nil
}

// ensureSelected selects the default mailbox when a fetch happens without
// a preceding search.
func (c *IMAPClient) ensureSelected() error {
	if c.selected != "" {
		return nil
	}
	return c.selectMailbox("")
}

// mailboxLabel returns the label stamped on messages fetched from the
// currently selected mailbox. IMAP flags carry read/starred state but not
// mailbox membership, so the label has to come from the selection.
func (c *IMAPClient) mailboxLabel() string {
	switch c.selected {
	case "Junk":
		return "SPAM"
	case "Trash":
		return "TRASH"
	case "Drafts":
		return "DRAFT"
	case "Sent":
		return "SENT"
	case "Archive":
		return ""
	default:
		return "INBOX"
	}
}

// Search implements Client by translating the query into IMAP search
// criteria.
func (c *IMAPClient) Search(ctx context.Context, q *Query, maxResults int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	if err := c.selectMailbox(q.Filters.Folder); err != nil {
		return nil, err
	}

	criteria, err := buildSearchCriteria(q)
	if err != nil {
		return nil, err
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

// buildSearchCriteria translates a query into IMAP search criteria.
// Predicates the protocol cannot express are rejected instead of silently
// dropped, so the id set never over-matches.
func buildSearchCriteria(q *Query) (*imap.SearchCriteria, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = q.Start.UTC().Truncate(24 * time.Hour)
	// IMAP BEFORE is exclusive of the given day.
	criteria.Before = q.End.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)

	f := q.Filters
	switch len(f.From) {
	case 0:
	case 1:
		criteria.Header.Add("From", f.From[0])
	default:
		terms := make([]*imap.SearchCriteria, len(f.From))
		for i, sender := range f.From {
			t := imap.NewSearchCriteria()
			t.Header.Add("From", sender)
			terms[i] = t
		}
		criteria.Or = orCriteria(terms).Or
	}

	if f.SubjectContains != "" {
		criteria.Header.Add("Subject", f.SubjectContains)
	}
	if f.SubjectNotContains != "" {
		not := imap.NewSearchCriteria()
		not.Header.Add("Subject", f.SubjectNotContains)
		criteria.Not = append(criteria.Not, not)
	}

	if f.HasAttachment != nil {
		return nil, fmt.Errorf("attachment filtering is not supported by the IMAP backend")
	}

	if f.IsUnread != nil {
		if *f.IsUnread {
			criteria.WithoutFlags = append(criteria.WithoutFlags, imap.SeenFlag)
		} else {
			criteria.WithFlags = append(criteria.WithFlags, imap.SeenFlag)
		}
	}
	// Importance maps onto \Flagged, the same as starring.
	appendFlagCriteria(criteria, f.IsStarred, imap.FlaggedFlag)
	appendFlagCriteria(criteria, f.IsImportant, imap.FlaggedFlag)

	return criteria, nil
}

// orCriteria folds a list of criteria into right-nested OR pairs.
func orCriteria(terms []*imap.SearchCriteria) *imap.SearchCriteria {
	cur := terms[len(terms)-1]
	for i := len(terms) - 2; i >= 0; i-- {
		parent := imap.NewSearchCriteria()
		parent.Or = [][2]*imap.SearchCriteria{{terms[i], cur}}
		cur = parent
	}
	return cur
}

func appendFlagCriteria(criteria *imap.SearchCriteria, v *bool, flag string) {
	if v == nil {
		return
	}
	if *v {
		criteria.WithFlags = append(criteria.WithFlags, flag)
	} else {
		criteria.WithoutFlags = append(criteria.WithoutFlags, flag)
	}
}

// FetchBatch implements Client. Messages are fetched in UID batches of
// batchSize; ids the server no longer knows are omitted.
func (c *IMAPClient) FetchBatch(ctx context.Context, ids []string, batchSize int) ([]*types.Email, error) {
	if err := c.connect(); err != nil {
		return nil, err
	}
	if err := c.ensureSelected(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 25
	}

	var emails []*types.Email
	for start := 0; start < len(ids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := c.fetchUIDs(ids[start:end], false)
		if err != nil {
			return nil, err
		}
		emails = append(emails, batch...)
	}
	return emails, nil
}

// FetchText implements Client by fetching the full body of a single UID.
func (c *IMAPClient) FetchText(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.connect(); err != nil {
		return "", err
	}
	if err := c.ensureSelected(); err != nil {
		return "", err
	}

	emails, err := c.fetchUIDs([]string{id}, true)
	if err != nil {
		return "", err
	}
	if len(emails) == 0 {
		return "", ErrNotFound
	}
	return emails[0].TextContent, nil
}

// fetchUIDs fetches envelope metadata (and optionally bodies) for a set of
// UID strings.
func (c *IMAPClient) fetchUIDs(ids []string, withBody bool) ([]*types.Email, error) {
	seqSet := new(imap.SeqSet)
	for _, id := range ids {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid message id %q: %w", id, err)
		}
		seqSet.AddNum(uint32(uid))
	}

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, imap.FetchRFC822Size, imap.FetchUid}
	if withBody {
		items = append(items, imap.FetchRFC822)
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var emails []*types.Email
	for msg := range messages {
		emails = append(emails, c.parseMessage(msg, withBody))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return emails, nil
}

// parseMessage converts an IMAP message into the cache's Email record.
func (c *IMAPClient) parseMessage(msg *imap.Message, withBody bool) *types.Email {
	e := &types.Email{
		ID:        strconv.FormatUint(uint64(msg.Uid), 10),
		Timestamp: msg.InternalDate,
		SizeBytes: int64(msg.Size),
		Labels:    flagsToLabels(msg.Flags),
	}
	if label := c.mailboxLabel(); label != "" && !e.HasLabel(label) {
		e.Labels = append(e.Labels, label)
	}

	if msg.Envelope != nil {
		e.Subject = msg.Envelope.Subject
		e.ThreadID = msg.Envelope.MessageId
		if !msg.Envelope.Date.IsZero() {
			e.Timestamp = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			addr := msg.Envelope.From[0]
			e.SenderName = addr.PersonalName
			e.SenderEmail = addr.Address()
		}
		if len(msg.Envelope.To) > 0 {
			addr := msg.Envelope.To[0]
			e.RecipientName = addr.PersonalName
			e.RecipientEmail = addr.Address()
		}
	}

	e.IsRead = !e.HasLabel("UNREAD")
	e.IsImportant = e.HasLabel("STARRED")

	if withBody && msg.Body != nil {
		body := readBody(msg.Body)
		if len(body) > 0 {
			if env, err := enmime.ReadEnvelope(bytes.NewReader(body)); err == nil {
				e.TextContent = env.Text
			} else {
				c.logger.WithError(err).Debug("MIME parse failed, using raw body")
				e.TextContent = string(body)
			}
		}
	}
	if e.Snippet == "" && e.TextContent != "" {
		e.Snippet = snippet(e.TextContent)
	}
	return e
}

// Modify implements Client by translating labels onto IMAP flags and
// applying a UID STORE per direction.
func (c *IMAPClient) Modify(ctx context.Context, ids, addLabels, removeLabels []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	if err := c.ensureSelected(); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	for _, id := range ids {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid message id %q: %w", id, err)
		}
		seqSet.AddNum(uint32(uid))
	}

	// UNREAD is the inverse of \Seen, so adding it removes the flag and
	// removing it sets the flag.
	addFlags, clearFromAdd := labelsToFlags(addLabels)
	removeFlags, setFromRemove := labelsToFlags(removeLabels)
	addFlags = append(addFlags, setFromRemove...)
	removeFlags = append(removeFlags, clearFromAdd...)

	result := make(map[string]bool, len(ids))
	ok := true
	if len(addFlags) > 0 {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.client.UidStore(seqSet, item, addFlags, nil); err != nil {
			c.logger.WithError(err).Warn("Failed to add flags")
			ok = false
		}
	}
	if len(removeFlags) > 0 {
		item := imap.FormatFlagsOp(imap.RemoveFlags, true)
		if err := c.client.UidStore(seqSet, item, removeFlags, nil); err != nil {
			c.logger.WithError(err).Warn("Failed to remove flags")
			ok = false
		}
	}

	for _, id := range ids {
		result[id] = ok
	}
	return result, nil
}

// labelFlags maps the portable label names onto IMAP system flags. Labels
// without a flag equivalent become keywords.
var labelFlags = map[string]string{
	"STARRED": imap.FlaggedFlag,
	"TRASH":   imap.DeletedFlag,
	"DRAFT":   imap.DraftFlag,
}

// labelsToFlags translates labels into flags to apply in the same
// direction, plus \Seen flags to apply in the opposite direction for each
// UNREAD label.
func labelsToFlags(labels []string) (same, inverted []interface{}) {
	for _, l := range labels {
		switch {
		case l == "UNREAD":
			inverted = append(inverted, imap.SeenFlag)
		default:
			if f, ok := labelFlags[l]; ok {
				same = append(same, f)
			} else {
				same = append(same, l)
			}
		}
	}
	return same, inverted
}

func flagsToLabels(flags []string) []string {
	labels := []string{}
	seen := false
	for _, f := range flags {
		switch f {
		case imap.SeenFlag:
			seen = true
		case imap.FlaggedFlag:
			labels = append(labels, "STARRED")
		case imap.DeletedFlag:
			labels = append(labels, "TRASH")
		case imap.DraftFlag:
			labels = append(labels, "DRAFT")
		default:
			labels = append(labels, strings.TrimPrefix(f, "\\"))
		}
	}
	if !seen {
		labels = append(labels, "UNREAD")
	}
	return labels
}

// readBody drains the first non-empty literal from a fetched body map.
func readBody(body map[*imap.BodySectionName]imap.Literal) []byte {
	for _, literal := range body {
		if literal == nil {
			continue
		}
		data, err := io.ReadAll(literal)
		if err == nil && len(data) > 0 {
			return data
		}
	}
	return nil
}

// snippet returns a short preview of the given text, truncated on a rune
// boundary so multi-byte characters are never split.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= 200 {
		return text
	}
	cut := 200
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
