// Package fingerprint computes the stable hash identifying a translation
// request's content+tier+target (spec §3 Translation Job, GLOSSARY
// "Fingerprint"), used by C4/C9 to enforce at-most-one-in-flight per
// fingerprint.
package fingerprint

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Tier is the translation quality class a fingerprint is scoped to.
type Tier string

const (
	TierRealtime         Tier = "realtime"
	TierSentence         Tier = "sentence"
	TierParagraph        Tier = "paragraph"
	TierUserInput        Tier = "user_input"
	TierSummaryTranslate Tier = "summary_translate"
)

// Rank returns the ordinal quality rank of t, used to decide whether an
// incoming refinement's tier is high enough to replace a stored translation
// (spec §4.9: Realtime < Sentence < Paragraph).
func (t Tier) Rank() int {
	switch t {
	case TierRealtime:
		return 0
	case TierUserInput, TierSummaryTranslate:
		return 0
	case TierSentence:
		return 1
	case TierParagraph:
		return 2
	default:
		return 0
	}
}

// Fingerprint is the opaque hash identifying a (normalized source text, tier,
// target language) triple.
type Fingerprint uint64

// String renders the fingerprint as a lowercase hex string without leading
// zeros, suitable for log fields and map keys in code that prefers a string
// type.
func (f Fingerprint) String() string {
	return strconv.FormatUint(uint64(f), 16)
}

// Compute normalizes sourceText and hashes it together with tier and
// targetLang into a stable Fingerprint. Two requests with the same
// normalized text, tier, and target language always collapse to the same
// fingerprint, which is the mechanism C4/C9 use to enforce at-most-one
// in-flight job per fingerprint.
func Compute(sourceText string, tier Tier, targetLang string) Fingerprint {
	h := xxhash.New()
	_, _ = h.WriteString(normalize(sourceText))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(string(tier))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strings.ToLower(targetLang))
	return Fingerprint(h.Sum64())
}

// normalize lowercases s, trims surrounding whitespace and collapses inner
// runs of whitespace to a single space, so that text differing only in case
// or spacing converges on the same fingerprint. Punctuation is kept as is.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
