package classify

import (
	"strings"

	"github.com/WessleyAI/threadharvest/engine/domain"
)

// CleanBody reduces the rendered text of a comment element to its body.
// Lines holding the author name, UI labels, timestamps or counters are
// dropped, tagged names are removed, and an author name echoed at the start
// is cut.
func CleanBody(raw, author string, tagged []string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		l := domain.CollapseSpace(line)
		switch {
		case l == "":
		case author != "" && strings.EqualFold(l, author):
		case IsUIWord(l), IsTimestamp(l), IsCounter(l):
		default:
			kept = append(kept, l)
		}
	}
	return StripNames(strings.Join(kept, " "), author, tagged)
}

// StripNames removes tagged names and a leading author name from body.
func StripNames(body, author string, tagged []string) string {
	for _, name := range tagged {
		name = domain.CollapseSpace(name)
		if name == "" || strings.EqualFold(name, author) {
			continue
		}
		body = strings.ReplaceAll(body, "@"+name, " ")
		body = strings.ReplaceAll(body, name, " ")
	}
	body = domain.CollapseSpace(body)
	if author != "" && author != domain.UnknownAuthor {
		n := len(author)
		if len(body) > n && strings.EqualFold(body[:n], author) && strings.ContainsRune(" :,-", rune(body[n])) {
			body = body[n:]
		}
	}
	body = strings.TrimLeft(domain.CollapseSpace(body), "@:,- ")
	return domain.CollapseSpace(body)
}

// StickerBody renders a sticker-only comment from the sticker's label. Only
// the part before the first comma names the sticker.
func StickerBody(label string) string {
	label, _, _ = strings.Cut(label, ",")
	label = domain.CollapseSpace(label)
	if label == "" {
		return "[Sticker]"
	}
	return "[Sticker: " + label + "]"
}
