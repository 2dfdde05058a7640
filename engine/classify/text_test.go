package classify

import "testing"

func TestIsMeaningfulCommentRejects(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		author string
	}{
		{"empty", "", "Ann"},
		{"whitespace", "  \n\t ", "Ann"},
		{"like", "Like", ""},
		{"reply", "Reply", ""},
		{"write a comment", "Write a comment", ""},
		{"most relevant", "Most relevant", ""},
		{"top fan", "Top fan", ""},
		{"thai like", "ถูกใจ", ""},
		{"counter", "123", ""},
		{"grouped counter", "1,234", ""},
		{"short counter", "2K", ""},
		{"hours ago", "3h ago", ""},
		{"days short", "2d", ""},
		{"minutes long", "15 minutes ago", ""},
		{"just now", "Just now", ""},
		{"yesterday", "yesterday", ""},
		{"thai hours", "2 ชั่วโมง", ""},
		{"thai yesterday", "เมื่อวาน", ""},
		{"author echo", "ann lee", "Ann Lee"},
		{"emoji only", "👍👍", ""},
		{"digits and punctuation", "12, 3", ""},
		{"mention only", "@john_doe", ""},
		{"mention and ui words", "@jane like reply", ""},
		{"single letter", "k", ""},
		{"badge with emoji", "Top fan 👍", "Ann"},
		{"edited marker", "Edited ✓", "Ann"},
		{"sort menu", "Most relevant ▾", "Ann"},
		{"author badge with counter", "Author · 2", "Ann"},
		{"thai like with emoji", "ถูกใจ 👍", "Ann"},
		{"composer placeholder", "Write a comment…", "Ann"},
		{"translated marker", "Translated !!", "Ann"},
		{"thai edited", "แก้ไขแล้ว ✓", "Ann"},
		{"stacked labels", "Like · Reply · Share · Edited", "Ann"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsMeaningfulComment(tt.text, tt.author) {
				t.Errorf("IsMeaningfulComment(%q, %q) = true, want false", tt.text, tt.author)
			}
		})
	}
}

func TestIsMeaningfulCommentAccepts(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		author string
	}{
		{"short reply", "ok", ""},
		{"sentence", "This is a great video!", "Ann"},
		{"with mention", "@bob totally agree", "Ann"},
		{"thai", "ดี", ""},
		{"thai sentence", "สวยมากเลยครับ", "สมชาย"},
		{"contains author", "Ann Lee is right", "Ann Lee"},
		{"emoji with words", "love it 😍", ""},
		{"number with words", "10 out of 10", ""},
		{"ui word inside a sentence", "I like the author of this", ""},
		{"word containing a ui word", "Likely the best one", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsMeaningfulComment(tt.text, tt.author) {
				t.Errorf("IsMeaningfulComment(%q, %q) = false, want true", tt.text, tt.author)
			}
		})
	}
}

func TestCleanBody(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		author string
		tagged []string
		want   string
	}{
		{
			name:   "chrome lines dropped",
			raw:    "Ann Lee\nTop fan\nWhat a   goal\n3h\nLike\nReply\n12",
			author: "Ann Lee",
			want:   "What a goal",
		},
		{
			name:   "tagged names removed",
			raw:    "Ann Lee\nBob Stone look at this",
			author: "Ann Lee",
			tagged: []string{"Bob Stone"},
			want:   "look at this",
		},
		{
			name:   "leading author echo",
			raw:    "Ann Lee: thanks everyone",
			author: "Ann Lee",
			want:   "thanks everyone",
		},
		{
			name:   "name prefix inside word kept",
			raw:    "Annabelle was here",
			author: "Ann",
			want:   "Annabelle was here",
		},
		{
			name:   "multi line body joined",
			raw:    "first line\nsecond line",
			author: "Unknown",
			want:   "first line second line",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanBody(tt.raw, tt.author, tt.tagged); got != tt.want {
				t.Errorf("CleanBody = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStickerBody(t *testing.T) {
	if got := StickerBody("Thumbs up"); got != "[Sticker: Thumbs up]" {
		t.Errorf("got %q", got)
	}
	if got := StickerBody("Thumbs up, sticker"); got != "[Sticker: Thumbs up]" {
		t.Errorf("got %q", got)
	}
	if got := StickerBody(""); got != "[Sticker]" {
		t.Errorf("got %q", got)
	}
}
