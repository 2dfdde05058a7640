// Package domain defines the records, content categories and error taxonomy
// shared by every stage of the harvest pipeline.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentType classifies a source URL by the page layout it implies.
type ContentType int

const (
	Watch ContentType = iota
	Reel
	Post
)

func (c ContentType) String() string {
	switch c {
	case Reel:
		return "REEL"
	case Post:
		return "POST"
	default:
		return "WATCH"
	}
}

// MarshalText renders the type the same way the CSV column does.
func (c ContentType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText accepts the names produced by String, case-insensitively.
func (c *ContentType) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "REEL":
		*c = Reel
	case "POST":
		*c = Post
	default:
		*c = Watch
	}
	return nil
}

// UnknownAuthor is the sentinel used when no commenter name can be resolved.
const UnknownAuthor = "Unknown"

// NoCaption is the caption recorded when the source exposes none.
const NoCaption = "No caption"

// CommentRecord is one accepted comment.
type CommentRecord struct {
	ID          string      `json:"id"`
	SourceURL   string      `json:"source_url"`
	ContentType ContentType `json:"content_type"`
	Caption     string      `json:"caption"`
	Author      string      `json:"author"`
	Body        string      `json:"body"`
	HarvestedAt time.Time   `json:"harvested_at"`
}

// DedupKey is the whitespace-collapsed body used for duplicate suppression.
func (r CommentRecord) DedupKey() string { return CollapseSpace(r.Body) }

// NewCommentRecord builds a record with a deterministic ID so the same comment
// on the same source always maps to the same identity downstream.
func NewCommentRecord(sourceURL string, ct ContentType, caption, author, body string, at time.Time) CommentRecord {
	body = CollapseSpace(body)
	if author == "" {
		author = UnknownAuthor
	}
	return CommentRecord{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL+"\x00"+body)).String(),
		SourceURL:   sourceURL,
		ContentType: ct,
		Caption:     caption,
		Author:      author,
		Body:        body,
		HarvestedAt: at,
	}
}

// CollapseSpace trims s and folds every whitespace run to a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
