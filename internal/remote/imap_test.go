package remote

import (
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIMAPClient(mailbox string) *IMAPClient {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c := NewIMAPClient(IMAPConfig{Host: "mail.example.com", Mailbox: "INBOX"}, logger)
	c.selected = mailbox
	return c
}

func imapMessage(uid uint32, flags ...string) *imap.Message {
	return &imap.Message{
		Uid:          uid,
		Flags:        flags,
		InternalDate: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Size:         2048,
		Envelope: &imap.Envelope{
			Subject: "hello",
			From:    []*imap.Address{{PersonalName: "Alice", MailboxName: "alice", HostName: "example.com"}},
		},
	}
}

// Messages fetched from the inbox must carry its label, or folder
// filtering would drop every one of them downstream.
func TestParseMessageStampsInboxLabel(t *testing.T) {
	c := newTestIMAPClient("INBOX")

	e := c.parseMessage(imapMessage(42, imap.SeenFlag), false)

	assert.True(t, e.HasLabel("INBOX"))
	assert.True(t, e.IsRead)
	assert.True(t, Filters{Folder: FolderInbox}.FolderMatches(e))
	assert.False(t, Filters{Folder: FolderArchive}.FolderMatches(e))
}

func TestParseMessageStampsSpamLabel(t *testing.T) {
	c := newTestIMAPClient("Junk")

	e := c.parseMessage(imapMessage(7), false)

	assert.True(t, e.HasLabel("SPAM"))
	assert.False(t, e.HasLabel("INBOX"))
	assert.True(t, Filters{Folder: FolderSpam}.FolderMatches(e))
}

// Archive has no label of its own: membership is the absence of INBOX.
func TestParseMessageArchiveMailbox(t *testing.T) {
	c := newTestIMAPClient("Archive")

	e := c.parseMessage(imapMessage(7, imap.SeenFlag), false)

	assert.False(t, e.HasLabel("INBOX"))
	assert.True(t, Filters{Folder: FolderArchive}.FolderMatches(e))
	assert.False(t, Filters{Folder: FolderInbox}.FolderMatches(e))
}

func TestParseMessageTrashFlagNotDuplicated(t *testing.T) {
	c := newTestIMAPClient("Trash")

	e := c.parseMessage(imapMessage(7, imap.DeletedFlag), false)

	count := 0
	for _, l := range e.Labels {
		if l == "TRASH" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildSearchCriteriaDateBounds(t *testing.T) {
	q := BuildQuery(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Filters{},
	)

	criteria, err := buildSearchCriteria(q)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), criteria.Since)
	// BEFORE is exclusive, so the end bound is pushed one day out.
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), criteria.Before)
}

func TestBuildSearchCriteriaMultipleSenders(t *testing.T) {
	q := BuildQuery(time.Now(), time.Now(), Filters{
		From: []string{"a@example.com", "b@example.com", "c@example.com"},
	})

	criteria, err := buildSearchCriteria(q)
	require.NoError(t, err)

	senders := collectFromHeaders(criteria)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, senders)
}

func TestBuildSearchCriteriaSubjectNotContains(t *testing.T) {
	q := BuildQuery(time.Now(), time.Now(), Filters{SubjectNotContains: "newsletter"})

	criteria, err := buildSearchCriteria(q)
	require.NoError(t, err)

	require.Len(t, criteria.Not, 1)
	assert.Equal(t, "newsletter", criteria.Not[0].Header.Get("Subject"))
}

func TestBuildSearchCriteriaImportantMapsToFlagged(t *testing.T) {
	q := BuildQuery(time.Now(), time.Now(), Filters{IsImportant: Bool(true)})

	criteria, err := buildSearchCriteria(q)
	require.NoError(t, err)
	assert.Contains(t, criteria.WithFlags, imap.FlaggedFlag)

	q = BuildQuery(time.Now(), time.Now(), Filters{IsImportant: Bool(false)})
	criteria, err = buildSearchCriteria(q)
	require.NoError(t, err)
	assert.Contains(t, criteria.WithoutFlags, imap.FlaggedFlag)
}

func TestBuildSearchCriteriaRejectsAttachmentFilter(t *testing.T) {
	q := BuildQuery(time.Now(), time.Now(), Filters{HasAttachment: Bool(true)})

	_, err := buildSearchCriteria(q)
	assert.ErrorContains(t, err, "not supported")
}

// collectFromHeaders walks nested OR criteria and gathers every From
// header value.
func collectFromHeaders(criteria *imap.SearchCriteria) []string {
	var out []string
	if v := criteria.Header.Get("From"); v != "" {
		out = append(out, v)
	}
	for _, pair := range criteria.Or {
		out = append(out, collectFromHeaders(pair[0])...)
		out = append(out, collectFromHeaders(pair[1])...)
	}
	return out
}

func TestSnippetTruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes put byte offset 200 mid-rune.
	s := snippet(strings.Repeat("€", 100))

	assert.True(t, utf8.ValidString(s))
	assert.True(t, strings.HasSuffix(s, "..."))
	assert.Equal(t, strings.Repeat("€", 66)+"...", s)
}

func TestSnippetShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short text", snippet("short   text"))
}
