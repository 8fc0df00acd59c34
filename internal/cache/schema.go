package cache

import (
	"time"
	"unicode/utf8"

	"github.com/brandon/mailcache/pkg/types"
)

// CurrentSchemaVersion is stamped into every record at write time. Bump it
// whenever the stored shape changes, and add the matching transform to
// schemaUpgrades so existing caches survive the release without a wipe.
const CurrentSchemaVersion = 3

// SchemaManager keeps on-disk records compatible across releases: records
// written by older versions are upgraded in memory at read time, with
// missing fields defaulting rather than failing.
type SchemaManager struct {
	version int
	now     func() time.Time
}

// NewSchemaManager returns a manager targeting the current version.
func NewSchemaManager() *SchemaManager {
	return &SchemaManager{version: CurrentSchemaVersion, now: time.Now}
}

// Version returns the running schema version.
func (m *SchemaManager) Version() int { return m.version }

// IsCurrent reports whether the record was written at the running version.
func (m *SchemaManager) IsCurrent(e *types.Email) bool {
	return e.SchemaVersion == m.version
}

// schemaUpgrades[v] transforms a version-v record into a version-v+1 one.
// Records older than the first known transform start at version 1.
var schemaUpgrades = map[int]func(*types.Email){
	// v1 -> v2: snippet and thread id were introduced.
	1: func(e *types.Email) {
		if e.Snippet == "" && e.TextContent != "" {
			e.Snippet = snippetOf(e.TextContent)
		}
		if e.ThreadID == "" {
			e.ThreadID = e.ID
		}
	},
	// v2 -> v3: read/importance flags were introduced; older records are
	// assumed read and unimportant, and the label slice became mandatory.
	2: func(e *types.Email) {
		if e.Labels == nil {
			e.Labels = []string{}
		}
		if !e.HasLabel("UNREAD") {
			e.IsRead = true
		}
	},
}

// Upgrade applies version transforms sequentially until the record is
// current, then refreshes its bookkeeping. Unknown old shapes are upgraded
// best-effort.
func (m *SchemaManager) Upgrade(e *types.Email) *types.Email {
	v := e.SchemaVersion
	if v < 1 {
		v = 1
	}
	for ; v < m.version; v++ {
		if transform, ok := schemaUpgrades[v]; ok {
			transform(e)
		}
	}
	e.SchemaVersion = m.version
	e.LastUpdated = m.now()
	return e
}

// Stamp attaches the current version and cache timestamps before a first
// write.
func (m *SchemaManager) Stamp(e *types.Email) *types.Email {
	now := m.now()
	e.SchemaVersion = m.version
	e.CachedAt = now
	e.LastUpdated = now
	if e.Labels == nil {
		e.Labels = []string{}
	}
	return e
}

// snippetOf truncates on a rune boundary so the stored snippet is always
// valid UTF-8.
func snippetOf(text string) string {
	if len(text) <= 200 {
		return text
	}
	cut := 200
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
