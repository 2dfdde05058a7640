package classify

import "testing"

func TestExtractAuthor(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		fallback string
		want     string
	}{
		{"comment by with time", "Comment by Jane Doe 3 hours ago", "", "Jane Doe"},
		{"comment by a few minutes", "Comment by Jane Doe a few minutes ago", "", "Jane Doe"},
		{"comment by about an hour", "Comment by Jane Doe about an hour ago", "", "Jane Doe"},
		{"comment by short time", "Comment by Max Power 5d", "", "Max Power"},
		{"comment by comma", "Comment by Max Power, 2 reactions", "", "Max Power"},
		{"comment by bare", "Comment by Max Power", "", "Max Power"},
		{"reply by to", "Reply by Bob Stone to Jane Doe's comment 2 hours ago", "", "Bob Stone"},
		{"attribution suffix", "Comment by Jane Doe's comment", "", "Jane Doe"},
		{"badge stripped", "Comment by Top fan Jane Doe 1 day ago", "", "Jane Doe"},
		{"thai by", "ความคิดเห็นโดย สมชาย ใจดี เมื่อ 2 ชั่วโมงที่แล้ว", "", "สมชาย ใจดี"},
		{"thai from", "ความคิดเห็นจาก สมหญิง เมื่อวาน", "", "สมหญิง"},
		{"thai reply", "ตอบกลับโดย วิชัย, 3 นาที", "", "วิชัย"},
		{"fallback link", "", "Ann Lee", "Ann Lee"},
		{"fallback skips badge line", "", "Top fan\nAnn Lee", "Ann Lee"},
		{"fallback timestamp is ambiguous", "", "3h", "Unknown"},
		{"lead-in with only a timestamp", "Comment by 3 hours ago", "", "Unknown"},
		{"unrelated label", "Photo of a cat", "", "Unknown"},
		{"nothing", "", "", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractAuthor(tt.label, tt.fallback); got != tt.want {
				t.Errorf("ExtractAuthor(%q, %q) = %q, want %q", tt.label, tt.fallback, got, tt.want)
			}
		})
	}
}
