// Package analysis derives content metrics from email bodies: signal
// counters commonly used to spot promotional or aggressive mail.
package analysis

import (
	"strings"
	"unicode"

	"github.com/brandon/mailcache/pkg/types"
)

// Compute derives metrics from a body. The metrics are recomputed on
// demand and never persisted with the record.
func Compute(text string) *types.ContentMetrics {
	m := &types.ContentMetrics{
		ExclamationCount:  strings.Count(text, "!"),
		ExternalLinkCount: strings.Count(text, "http://") + strings.Count(text, "https://"),
	}

	var upper, letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters > 0 {
		m.UppercaseRatio = float64(upper) / float64(letters)
	}

	for _, word := range strings.Fields(text) {
		if isCapsWord(word) {
			m.CapsWordCount++
		}
	}
	return m
}

// Attach computes metrics for every email that has text content. Bodies
// carrying a fetch-error placeholder are skipped.
func Attach(emails []*types.Email) {
	for _, e := range emails {
		if e.TextContent == "" || strings.HasPrefix(e.TextContent, "[text unavailable") {
			continue
		}
		e.Metrics = Compute(e.TextContent)
	}
}

// isCapsWord reports whether a token is an all-uppercase word of at least
// three letters, so acronym-length noise like "OK" or "Re" is ignored.
func isCapsWord(word string) bool {
	letters := 0
	for _, r := range word {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 3
}
