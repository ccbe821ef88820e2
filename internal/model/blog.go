package model

import "time"

// PostStatus is the publication state of a BlogPost.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
	PostScheduled PostStatus = "scheduled"
)

// BlogPost is a blog article. Content is stored as-is (markdown-like).
type BlogPost struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Content     string     `json:"content"`
	AuthorID    string     `json:"author_id,omitempty"`
	Tags        []string   `json:"tags"`
	Status      PostStatus `json:"status"`
	PublishAt   *time.Time `json:"publish_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Views       int64      `json:"views"`
	Likes       int64      `json:"likes"`
	Dislikes    int64      `json:"dislikes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// VoteKind is a user's vote on a post.
type VoteKind string

const (
	VoteNone    VoteKind = "none"
	VoteLike    VoteKind = "like"
	VoteDislike VoteKind = "dislike"
)

// PostVote records the vote a user currently holds on a post.
type PostVote struct {
	PostID string   `json:"post_id"`
	UserID string   `json:"user_id"`
	Kind   VoteKind `json:"kind"`
}

// PostPatch holds the editable fields of a post. Nil fields are left unchanged.
type PostPatch struct {
	Title     *string     `json:"title"`
	Excerpt   *string     `json:"excerpt"`
	Content   *string     `json:"content"`
	Tags      []string    `json:"tags"`
	Status    *PostStatus `json:"status"`
	PublishAt *time.Time  `json:"publish_at"`
}
