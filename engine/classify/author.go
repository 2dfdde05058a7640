package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/threadharvest/engine/domain"
)

const maxNameRunes = 80

// ExtractAuthor resolves the commenter name from an element's accessibility
// label, falling back to the text of its first profile link. It prefers
// domain.UnknownAuthor over a doubtful guess.
func ExtractAuthor(label, fallbackLinkText string) string {
	label = domain.CollapseSpace(label)
	for _, l := range locales {
		if name, ok := l.match(label); ok {
			if name, ok := validName(name); ok {
				return name
			}
			break
		}
	}
	for _, line := range strings.Split(fallbackLinkText, "\n") {
		if name, ok := validName(line); ok {
			return name
		}
	}
	return domain.UnknownAuthor
}

func validName(s string) (string, bool) {
	s = strings.Trim(domain.CollapseSpace(s), ":·•")
	s = domain.CollapseSpace(s)
	switch {
	case s == "":
		return "", false
	case utf8.RuneCountInString(s) > maxNameRunes:
		return "", false
	case IsUIWord(s), IsTimestamp(s), IsCounter(s):
		return "", false
	case significantRunes(s) == 0:
		return "", false
	}
	return s, true
}
