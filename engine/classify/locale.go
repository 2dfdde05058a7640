package classify

import "regexp"

// localePatterns is one language's view of an accessibility label such as
// "Comment by Jane Doe 3 hours ago". leadIn captures everything after the
// phrase; cuts remove trailing time phrases and reply markers.
type localePatterns struct {
	lang   string
	leadIn *regexp.Regexp
	cuts   []*regexp.Regexp
	badges *regexp.Regexp
}

var sharedCuts = []*regexp.Regexp{
	regexp.MustCompile(`\s*,.*$`),
}

var locales = []localePatterns{
	{
		lang:   "en",
		leadIn: regexp.MustCompile(`(?i)(?:^|\s)(?:comment|reply) by\s+(.+)$`),
		cuts: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\s+to\s+.*$`),
			regexp.MustCompile(`(?i)['’]s\s+comment.*$`),
			regexp.MustCompile(`(?i)\s+(?:about\s+)?(?:an?\s+)?(?:few\s+)?(?:\d+\s+)?(?:second|minute|hour|day|week|month|year)s?\s+ago.*$`),
			regexp.MustCompile(`(?i)\s+\d+\s*(?:s|m|h|d|w|y|mo|hrs?|mins?)\b.*$`),
			regexp.MustCompile(`(?i)\s+(?:just now|yesterday).*$`),
		},
		badges: regexp.MustCompile(`(?i)^(?:top fan|author)\s+|\s+(?:top fan|author)$`),
	},
	{
		lang:   "th",
		leadIn: regexp.MustCompile(`(?:ความคิดเห็นโดย|ความคิดเห็นจาก|ตอบกลับโดย)\s*(.+)$`),
		cuts: []*regexp.Regexp{
			regexp.MustCompile(`\s*เมื่อ.*$`),
			regexp.MustCompile(`\s+(?:ถึง|ไปยัง)ความคิดเห็น.*$`),
			regexp.MustCompile(`\s+\d+\s*(?:วินาที|นาที|ชั่วโมง|ชม|วัน|สัปดาห์|เดือน|ปี).*$`),
		},
		badges: regexp.MustCompile(`^(?:แฟนตัวยง|ผู้เขียน)\s+|\s+(?:แฟนตัวยง|ผู้เขียน)$`),
	},
}

// match applies the lead-in and cut patterns. ok is false when the label
// does not carry this locale's lead-in.
func (l localePatterns) match(label string) (name string, ok bool) {
	m := l.leadIn.FindStringSubmatch(label)
	if m == nil {
		return "", false
	}
	name = m[1]
	for _, re := range l.cuts {
		name = re.ReplaceAllString(name, "")
	}
	for _, re := range sharedCuts {
		name = re.ReplaceAllString(name, "")
	}
	return l.badges.ReplaceAllString(name, ""), true
}
