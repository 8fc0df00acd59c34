package types

import "time"

// BucketFormat is the calendar-day partition key layout used by the cache
// store and the date index.
const BucketFormat = "2006-01-02"

// Email is the unit of cached data. An email is addressable by ID alone;
// its date bucket is derived once from Timestamp when it is first written
// and never changes afterwards.
type Email struct {
	ID             string    `json:"message_id"`
	ThreadID       string    `json:"thread_id,omitempty"`
	SenderEmail    string    `json:"sender_email"`
	SenderName     string    `json:"sender_name,omitempty"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	RecipientName  string    `json:"recipient_name,omitempty"`
	Subject        string    `json:"subject"`
	Timestamp      time.Time `json:"timestamp"`
	SizeBytes      int64     `json:"size_bytes"`
	Labels         []string  `json:"labels"`
	Snippet        string    `json:"snippet,omitempty"`
	HasAttachments bool      `json:"has_attachments"`
	IsRead         bool      `json:"is_read"`
	IsImportant    bool      `json:"is_important"`

	// TextContent is the optional large body field. It is only populated
	// (and only required) when a request asks for text.
	TextContent string `json:"text_content,omitempty"`

	// Cache bookkeeping, stamped by the schema manager before first write.
	SchemaVersion int       `json:"schema_version"`
	CachedAt      time.Time `json:"cached_at,omitempty"`
	LastUpdated   time.Time `json:"last_updated,omitempty"`

	// Metrics are derived at request time and never persisted.
	Metrics *ContentMetrics `json:"-"`
}

// Bucket returns the calendar-day partition key for this email.
func (e *Email) Bucket() string {
	return e.Timestamp.UTC().Format(BucketFormat)
}

// HasLabel reports whether the email carries the given label.
func (e *Email) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the email.
func (e *Email) Clone() *Email {
	c := *e
	if e.Labels != nil {
		c.Labels = append([]string(nil), e.Labels...)
	}
	if e.Metrics != nil {
		m := *e.Metrics
		c.Metrics = &m
	}
	return &c
}

// ContentMetrics holds lightweight derived measurements over an email's
// text content.
type ContentMetrics struct {
	ExclamationCount  int     `json:"exclamation_count"`
	CapsWordCount     int     `json:"caps_word_count"`
	ExternalLinkCount int     `json:"external_link_count"`
	UppercaseRatio    float64 `json:"uppercase_ratio"`
}
