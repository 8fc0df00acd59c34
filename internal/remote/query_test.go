package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brandon/mailcache/pkg/types"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestQueryStringDateRange(t *testing.T) {
	q := BuildQuery(day("2024-01-01"), day("2024-01-31"), Filters{})
	// before: is exclusive, so the end bound is the day after the range.
	assert.Equal(t, "after:2024/01/01 before:2024/02/01", q.String())
}

func TestQueryStringSenders(t *testing.T) {
	single := BuildQuery(day("2024-01-01"), day("2024-01-01"), Filters{From: []string{"a@x.com"}})
	assert.Contains(t, single.String(), "from:a@x.com")

	multi := BuildQuery(day("2024-01-01"), day("2024-01-01"), Filters{From: []string{"a@x.com", "b@y.com"}})
	assert.Contains(t, multi.String(), "(from:a@x.com OR from:b@y.com)")
}

func TestQueryStringSubjectOperators(t *testing.T) {
	q := BuildQuery(day("2024-01-01"), day("2024-01-01"), Filters{
		SubjectContains:    "invoice&urgent",
		SubjectNotContains: "spam|promo",
	})
	s := q.String()
	assert.Contains(t, s, "subject:(invoice AND urgent)")
	assert.Contains(t, s, "subject:(NOT (spam OR promo))")
}

func TestQueryStringBoolTerms(t *testing.T) {
	q := BuildQuery(day("2024-01-01"), day("2024-01-01"), Filters{
		HasAttachment: Bool(true),
		IsUnread:      Bool(false),
		IsStarred:     Bool(true),
	})
	s := q.String()
	assert.Contains(t, s, "has:attachment")
	assert.Contains(t, s, "-is:unread")
	assert.Contains(t, s, "is:starred")
}

func TestQueryStringFolders(t *testing.T) {
	spam := BuildQuery(day("2024-01-01"), day("2024-01-01"), Filters{Folder: FolderSpam})
	assert.Contains(t, spam.String(), "in:spam")

	// Archive is "not in inbox", not a real folder.
	archive := BuildQuery(day("2024-01-01"), day("2024-01-01"), Filters{Folder: FolderArchive})
	assert.Contains(t, archive.String(), "-in:inbox")
}

func TestFolderMatches(t *testing.T) {
	inboxed := &types.Email{ID: "a", Labels: []string{"INBOX", "UNREAD"}}
	archived := &types.Email{ID: "b", Labels: []string{"UNREAD"}}

	assert.True(t, Filters{}.FolderMatches(inboxed))
	assert.True(t, Filters{Folder: FolderInbox}.FolderMatches(inboxed))
	assert.False(t, Filters{Folder: FolderInbox}.FolderMatches(archived))
	assert.True(t, Filters{Folder: FolderArchive}.FolderMatches(archived))
	assert.False(t, Filters{Folder: FolderArchive}.FolderMatches(inboxed))
}
