package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
)

// PostInput is the payload for creating a post.
type PostInput struct {
	Title     string           `json:"title" validate:"required,max=200"`
	Excerpt   string           `json:"excerpt" validate:"max=500"`
	Content   string           `json:"content" validate:"required"`
	Tags      []string         `json:"tags" validate:"max=20,dive,required,max=40"`
	Status    model.PostStatus `json:"status" validate:"omitempty,oneof=draft published scheduled"`
	PublishAt *time.Time       `json:"publish_at"`
}

// BlogService manages blog posts, views and votes.
type BlogService interface {
	Create(ctx context.Context, authorID string, in PostInput) (*model.BlogPost, error)
	Update(ctx context.Context, id string, patch model.PostPatch) (*model.BlogPost, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.BlogPost, error)
	GetBySlug(ctx context.Context, slug string) (*model.BlogPost, error)
	// List returns posts with the given status, or every post when status is empty.
	List(ctx context.Context, status model.PostStatus) ([]*model.BlogPost, error)
	Search(ctx context.Context, query string) ([]*model.BlogPost, error)
	IncrementViews(ctx context.Context, postID, viewerID string) (*model.BlogPost, error)
	Vote(ctx context.Context, postID, userID string, kind model.VoteKind) (*model.BlogPost, error)
	UserVote(ctx context.Context, postID, userID string) (model.VoteKind, error)
	// PublishDue publishes scheduled posts whose publish_at is not after now.
	PublishDue(ctx context.Context, now time.Time) (int, error)
}

type blogService struct {
	repo repository.BlogRepository
	now  func() time.Time
}

// NewBlogService creates a BlogService.
func NewBlogService(repo repository.BlogRepository) BlogService {
	return &blogService{repo: repo, now: time.Now}
}

// slugify lowercases title and keeps ASCII letters and digits, joining
// everything else into single dashes.
func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	s := b.String()
	if len(s) > 80 {
		s = strings.TrimRight(s[:80], "-")
	}
	if s == "" {
		return "post"
	}
	return s
}

const maxSlugAttempts = 50

// uniqueSlug appends -2, -3, … until the slug is free.
func (s *blogService) uniqueSlug(ctx context.Context, base string, attempt int) (string, error) {
	for i := attempt; i < maxSlugAttempts; i++ {
		candidate := base
		if i > 1 {
			candidate = base + "-" + strconv.Itoa(i)
		}
		_, err := s.repo.GetBySlug(ctx, candidate)
		if errors.Is(err, repository.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free slug for %q", base)
}

func checkSchedule(status model.PostStatus, publishAt *time.Time) error {
	if status == model.PostScheduled && publishAt == nil {
		return invalidField("publish_at", "required_for_scheduled")
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (s *blogService) Create(ctx context.Context, authorID string, in PostInput) (*model.BlogPost, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = model.PostDraft
	}
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	if err := checkSchedule(in.Status, in.PublishAt); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &model.BlogPost{
		Title:     in.Title,
		Excerpt:   in.Excerpt,
		Content:   in.Content,
		AuthorID:  authorID,
		Tags:      cleanTags(in.Tags),
		Status:    in.Status,
		PublishAt: in.PublishAt,
	}
	if p.Status == model.PostPublished {
		p.PublishedAt = ptr(now)
	}

	base := slugify(in.Title)
	attempt := 1
	for {
		slug, err := s.uniqueSlug(ctx, base, attempt)
		if err != nil {
			return nil, err
		}
		p.Slug = slug
		err = s.repo.Create(ctx, p)
		if err == nil {
			break
		}
		// 同時作成で slug が衝突した場合は次の候補で再試行
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create post: %w", err)
		}
		attempt++
	}
	slog.Info("post created", "post_id", p.ID, "slug", p.Slug, "status", p.Status)
	return p, nil
}

func (s *blogService) Update(ctx context.Context, id string, patch model.PostPatch) (*model.BlogPost, error) {
	now := s.now().UTC()
	return s.repo.Update(ctx, id, func(p *model.BlogPost) error {
		if patch.Title != nil {
			t := strings.TrimSpace(*patch.Title)
			if t == "" || len(t) > 200 {
				return invalidField("title", "required,max=200")
			}
			p.Title = t
		}
		if patch.Excerpt != nil {
			if len(*patch.Excerpt) > 500 {
				return invalidField("excerpt", "max=500")
			}
			p.Excerpt = *patch.Excerpt
		}
		if patch.Content != nil {
			if strings.TrimSpace(*patch.Content) == "" {
				return invalidField("content", "required")
			}
			p.Content = *patch.Content
		}
		if patch.Tags != nil {
			p.Tags = cleanTags(patch.Tags)
		}
		if patch.PublishAt != nil {
			p.PublishAt = patch.PublishAt
		}
		if patch.Status != nil {
			switch *patch.Status {
			case model.PostDraft, model.PostPublished, model.PostScheduled:
			default:
				return invalidField("status", "oneof=draft published scheduled")
			}
			p.Status = *patch.Status
		}
		if err := checkSchedule(p.Status, p.PublishAt); err != nil {
			return err
		}
		if p.Status == model.PostPublished && p.PublishedAt == nil {
			p.PublishedAt = ptr(now)
		}
		return nil
	})
}

func (s *blogService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *blogService) Get(ctx context.Context, id string) (*model.BlogPost, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *blogService) GetBySlug(ctx context.Context, slug string) (*model.BlogPost, error) {
	return s.repo.GetBySlug(ctx, slug)
}

func (s *blogService) List(ctx context.Context, status model.PostStatus) ([]*model.BlogPost, error) {
	posts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return posts, nil
	}
	out := make([]*model.BlogPost, 0, len(posts))
	for _, p := range posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func matches(p *model.BlogPost, q string) bool {
	if strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Excerpt), q) ||
		strings.Contains(strings.ToLower(p.Content), q) {
		return true
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// Search is a case-insensitive substring match over published posts, newest first.
func (s *blogService) Search(ctx context.Context, query string) ([]*model.BlogPost, error) {
	published, err := s.List(ctx, model.PostPublished)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return published, nil
	}
	out := make([]*model.BlogPost, 0)
	for _, p := range published {
		if matches(p, q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *blogService) IncrementViews(ctx context.Context, postID, viewerID string) (*model.BlogPost, error) {
	p, _, err := s.repo.RecordView(ctx, postID, viewerID)
	return p, err
}

func (s *blogService) Vote(ctx context.Context, postID, userID string, kind model.VoteKind) (*model.BlogPost, error) {
	switch kind {
	case model.VoteLike, model.VoteDislike, model.VoteNone:
	default:
		return nil, invalidField("vote", "oneof=like dislike none")
	}
	if userID == "" {
		return nil, ErrForbidden
	}
	return s.repo.ApplyVote(ctx, postID, userID, kind)
}

func (s *blogService) UserVote(ctx context.Context, postID, userID string) (model.VoteKind, error) {
	return s.repo.GetVote(ctx, postID, userID)
}

func (s *blogService) PublishDue(ctx context.Context, now time.Time) (int, error) {
	scheduled, err := s.List(ctx, model.PostScheduled)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, p := range scheduled {
		if p.PublishAt == nil || p.PublishAt.After(now) {
			continue
		}
		_, err := s.repo.Update(ctx, p.ID, func(x *model.BlogPost) error {
			if x.Status != model.PostScheduled {
				return nil
			}
			x.Status = model.PostPublished
			x.PublishedAt = ptr(*x.PublishAt)
			return nil
		})
		if err != nil {
			slog.Error("publish scheduled post failed", "post_id", p.ID, "error", err)
			continue
		}
		published++
	}
	if published > 0 {
		slog.Info("scheduled posts published", "count", published)
	}
	return published, nil
}
