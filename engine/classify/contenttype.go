package classify

import (
	"strings"

	"github.com/WessleyAI/threadharvest/engine/domain"
)

// typePatterns are checked in order; the first group with a matching
// substring decides the type.
var typePatterns = []struct {
	ct       domain.ContentType
	patterns []string
}{
	{domain.Watch, []string{"/watch/", "watch?v=", "/video/", "/videos/", "/live/", "/media/"}},
	{domain.Reel, []string{"/reel/", "/reels/"}},
	{domain.Post, []string{"/posts/", "/permalink", "story.php", "/photo", "/photos/", "/groups/"}},
}

// ContentTypeOf classifies a URL. Unrecognized URLs are treated as Watch.
func ContentTypeOf(url string) domain.ContentType {
	u := strings.ToLower(url)
	for _, g := range typePatterns {
		for _, p := range g.patterns {
			if strings.Contains(u, p) {
				return g.ct
			}
		}
	}
	return domain.Watch
}
