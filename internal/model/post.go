package model

import (
	"slices"
	"strings"
	"time"
)

// MediaType is the kind of media attached to a post.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Valid reports whether t is one of the known media types.
func (t MediaType) Valid() bool {
	return t == MediaImage || t == MediaVideo
}

// MediaTypeFromContentType maps an upload's MIME type to a MediaType.
// Anything that is not video/* is treated as an image.
func MediaTypeFromContentType(contentType string) MediaType {
	if strings.HasPrefix(strings.ToLower(contentType), "video/") {
		return MediaVideo
	}
	return MediaImage
}

// Post is a feed entry. Username and UserAvatar are a snapshot of the author
// taken when the post was created; later profile edits do not reach them.
//
// Likes always equals len(LikedBy).
type Post struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	UserAvatar  string    `json:"userAvatar"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	MediaURL    string    `json:"mediaUrl"`
	MediaType   MediaType `json:"mediaType"`
	Tags        []string  `json:"tags"`
	Likes       int       `json:"likes"`
	LikedBy     []string  `json:"likedBy"`
	Comments    []Comment `json:"comments"`
	Timestamp   time.Time `json:"timestamp"`
}

// Comment is appended to a post. Like Post it embeds an author snapshot.
type Comment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	UserAvatar string    `json:"userAvatar"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// PostDraft is the input to post creation. Tags is the raw comma-separated
// string typed by the user.
type PostDraft struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	MediaURL    string    `json:"mediaUrl"`
	MediaType   MediaType `json:"mediaType"`
	Tags        string    `json:"tags"`
}

// ParseTags splits a comma-separated tag string, trims each entry and drops
// empties. Order is preserved.
func ParseTags(raw string) []string {
	tags := []string{}
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// IsLikedBy reports whether userID is in the post's like set.
func (p Post) IsLikedBy(userID string) bool {
	return slices.Contains(p.LikedBy, userID)
}

// ToggleLike flips userID's membership in LikedBy and recomputes Likes from
// the set. It reports whether the user now likes the post.
func (p *Post) ToggleLike(userID string) bool {
	liked := !p.IsLikedBy(userID)
	if liked {
		p.LikedBy = addID(p.LikedBy, userID)
	} else {
		p.LikedBy = removeID(p.LikedBy, userID)
	}
	p.Likes = len(p.LikedBy)
	return liked
}

// Normalize fills nil collections and repairs a drifted like counter.
func (p *Post) Normalize() {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.LikedBy = cleanIDSet(p.LikedBy, "")
	p.Likes = len(p.LikedBy)
	if p.Comments == nil {
		p.Comments = []Comment{}
	}
	if !p.MediaType.Valid() {
		p.MediaType = MediaImage
	}
}

// Clone returns a deep copy of the post, including its comment list.
func (p Post) Clone() Post {
	p.Tags = slices.Clone(p.Tags)
	p.LikedBy = slices.Clone(p.LikedBy)
	p.Comments = slices.Clone(p.Comments)
	p.Normalize()
	return p
}
