package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/brandon/mailcache/pkg/types"
)

// Folder names understood by the query builder. Archive is special: it
// means "not in the inbox" rather than a real folder.
type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderArchive Folder = "archive"
	FolderSpam    Folder = "spam"
	FolderTrash   Folder = "trash"
	FolderDrafts  Folder = "drafts"
	FolderSent    Folder = "sent"
)

// folderLabels maps a folder to the label the remote stamps on its members.
var folderLabels = map[Folder]string{
	FolderInbox:  "INBOX",
	FolderSpam:   "SPAM",
	FolderTrash:  "TRASH",
	FolderDrafts: "DRAFT",
	FolderSent:   "SENT",
}

// Filters are the predicate parameters a caller can attach to a fetch.
// Nil boolean pointers mean "don't care".
type Filters struct {
	From               []string
	SubjectContains    string
	SubjectNotContains string
	HasAttachment      *bool
	IsUnread           *bool
	IsImportant        *bool
	IsStarred          *bool
	Folder             Folder
}

// FolderMatches reports whether an email with the given labels belongs to
// the filter's folder. An empty folder matches everything.
func (f Filters) FolderMatches(e *types.Email) bool {
	switch f.Folder {
	case "":
		return true
	case FolderArchive:
		return !e.HasLabel("INBOX")
	default:
		label, ok := folderLabels[f.Folder]
		if !ok {
			return true
		}
		return e.HasLabel(label)
	}
}

// Query is a remote search expression: an inclusive calendar-day range plus
// filter predicates.
type Query struct {
	Start   time.Time
	End     time.Time
	Filters Filters
}

// BuildQuery assembles a Query for the given range and filters.
func BuildQuery(start, end time.Time, f Filters) *Query {
	return &Query{Start: start, End: end, Filters: f}
}

// String renders the query in the remote's search syntax. The remote's
// after:/before: terms are exclusive, so the end bound is pushed one day
// out to keep the range inclusive of its last day.
func (q *Query) String() string {
	parts := []string{
		fmt.Sprintf("after:%s", q.Start.UTC().Format("2006/01/02")),
		fmt.Sprintf("before:%s", q.End.UTC().AddDate(0, 0, 1).Format("2006/01/02")),
	}

	f := q.Filters
	switch len(f.From) {
	case 0:
	case 1:
		parts = append(parts, "from:"+f.From[0])
	default:
		senders := make([]string, len(f.From))
		for i, s := range f.From {
			senders[i] = "from:" + s
		}
		parts = append(parts, "("+strings.Join(senders, " OR ")+")")
	}

	if f.SubjectContains != "" {
		parts = append(parts, fmt.Sprintf("subject:(%s)", subjectExpr(f.SubjectContains)))
	}
	if f.SubjectNotContains != "" {
		parts = append(parts, fmt.Sprintf("subject:(NOT (%s))", subjectExpr(f.SubjectNotContains)))
	}

	parts = appendBoolTerm(parts, f.HasAttachment, "has:attachment")
	parts = appendBoolTerm(parts, f.IsUnread, "is:unread")
	parts = appendBoolTerm(parts, f.IsImportant, "is:important")
	parts = appendBoolTerm(parts, f.IsStarred, "is:starred")

	switch f.Folder {
	case "":
	case FolderArchive:
		parts = append(parts, "-in:inbox")
	default:
		parts = append(parts, "in:"+string(f.Folder))
	}

	return strings.Join(parts, " ")
}

// subjectExpr converts the caller's &/| shorthand into the remote's
// AND/OR syntax.
func subjectExpr(s string) string {
	s = strings.ReplaceAll(s, "&", " AND ")
	s = strings.ReplaceAll(s, "|", " OR ")
	return strings.Join(strings.Fields(s), " ")
}

func appendBoolTerm(parts []string, v *bool, term string) []string {
	if v == nil {
		return parts
	}
	if *v {
		return append(parts, term)
	}
	return append(parts, "-"+term)
}

// Bool is a convenience for building Filters literals.
func Bool(v bool) *bool { return &v }
