// Package classify turns raw page strings into comment decisions: whether a
// string is a real comment, who wrote it, and what kind of page it came from.
// Everything here is pure and safe for concurrent use.
package classify

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/WessleyAI/threadharvest/engine/domain"
)

// MinSignificantRunes is the floor of letters a comment must keep after
// mentions and UI words are stripped. One-rune replies fall below it.
const MinSignificantRunes = 2

var uiVocabulary = map[string]struct{}{
	"like":            {},
	"reply":           {},
	"share":           {},
	"view":            {},
	"hide":            {},
	"edited":          {},
	"translated":      {},
	"write a comment": {},
	"most relevant":   {},
	"author":          {},
	"top fan":         {},
	// th
	"ถูกใจ":             {},
	"ตอบกลับ":           {},
	"แชร์":              {},
	"ซ่อน":              {},
	"แก้ไขแล้ว":         {},
	"แปลแล้ว":           {},
	"เขียนความคิดเห็น":  {},
	"เกี่ยวข้องมากที่สุด": {},
	"ผู้เขียน":          {},
	"แฟนตัวยง":          {},
}

var (
	timestampPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\d+\s*(s|secs?|seconds?|m|mins?|minutes?|h|hrs?|hours?|d|days?|w|wks?|weeks?|mo|mos|months?|y|yrs?|years?)(\s+ago)?$`),
		regexp.MustCompile(`(?i)^(just now|yesterday|now)$`),
		regexp.MustCompile(`^\d+\s*(วินาที|นาที|ชั่วโมง|ชม\.?|วัน|สัปดาห์|เดือน|ปี)(ที่แล้ว)?$`),
		regexp.MustCompile(`^(เมื่อสักครู่|เมื่อวานนี้|เมื่อวาน)$`),
	}
	counterPattern = regexp.MustCompile(`(?i)^\d[\d.,]*\s*[km]?$`)
	mentionPattern = regexp.MustCompile(`@[\p{L}\p{N}_.]+`)
	uiWordPattern  = vocabularyPattern(uiVocabulary)
)

// vocabularyPattern matches any entry of vocab, longest first so phrases
// win over their prefixes. Latin entries match whole words only; Thai has
// no word separators, so its entries match anywhere.
func vocabularyPattern(vocab map[string]struct{}) *regexp.Regexp {
	words := make([]string, 0, len(vocab))
	for w := range vocab {
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if n := utf8.RuneCountInString(b) - utf8.RuneCountInString(a); n != 0 {
			return n
		}
		return strings.Compare(a, b)
	})
	alts := make([]string, len(words))
	for i, w := range words {
		p := strings.Join(strings.Fields(regexp.QuoteMeta(w)), `\s+`)
		if isASCII(w) {
			p = `\b` + p + `\b`
		}
		alts[i] = p
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// IsUIWord reports whether s is exactly one of the interface labels that
// appear next to comments.
func IsUIWord(s string) bool {
	_, ok := uiVocabulary[strings.ToLower(domain.CollapseSpace(s))]
	return ok
}

// IsTimestamp reports whether s is a relative timestamp such as "3h ago",
// "2d" or "yesterday".
func IsTimestamp(s string) bool {
	s = domain.CollapseSpace(s)
	for _, re := range timestampPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// IsCounter reports whether s is a bare number such as a reaction count.
func IsCounter(s string) bool {
	return counterPattern.MatchString(domain.CollapseSpace(s))
}

// IsMeaningfulComment decides whether text is a genuine comment body.
func IsMeaningfulComment(text, author string) bool {
	t := domain.CollapseSpace(text)
	if t == "" {
		return false
	}
	if a := domain.CollapseSpace(author); a != "" && strings.EqualFold(t, a) {
		return false
	}
	if IsUIWord(t) || IsTimestamp(t) || IsCounter(t) {
		return false
	}
	residue := mentionPattern.ReplaceAllString(t, " ")
	residue = uiWordPattern.ReplaceAllString(residue, " ")
	return significantRunes(residue) >= MinSignificantRunes
}

// significantRunes counts letters and combining marks. Thai vowel signs are
// marks, so "ดี" counts as two.
func significantRunes(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsMark(r) {
			n++
		}
	}
	return n
}
