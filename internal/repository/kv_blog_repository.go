package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/storage"
	"github.com/google/uuid"
)

// postView marks that a viewer has been counted for a post.
type postView struct {
	PostID   string `json:"post_id"`
	ViewerID string `json:"viewer_id"`
}

type kvBlogRepository struct {
	mu    sync.Mutex
	posts kvCollection[*model.BlogPost]
	votes kvCollection[*model.PostVote]
	views kvCollection[postView]
	now   func() time.Time
}

// NewKVBlogRepository returns a Storage-backed BlogRepository.
func NewKVBlogRepository(store storage.Storage) BlogRepository {
	return &kvBlogRepository{
		posts: kvCollection[*model.BlogPost]{store: store, key: storage.KeyBlogPosts},
		votes: kvCollection[*model.PostVote]{store: store, key: storage.KeyBlogVotes},
		views: kvCollection[postView]{store: store, key: storage.KeyBlogViews},
		now:   time.Now,
	}
}

func findPost(posts []*model.BlogPost, match func(p *model.BlogPost) bool) *model.BlogPost {
	for _, p := range posts {
		if match(p) {
			return p
		}
	}
	return nil
}

func (r *kvBlogRepository) List(ctx context.Context) ([]*model.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	posts, err := r.posts.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts, nil
}

func (r *kvBlogRepository) get(ctx context.Context, match func(p *model.BlogPost) bool) (*model.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	posts, err := r.posts.load(ctx)
	if err != nil {
		return nil, err
	}
	if p := findPost(posts, match); p != nil {
		return p, nil
	}
	return nil, ErrNotFound
}

func (r *kvBlogRepository) GetByID(ctx context.Context, id string) (*model.BlogPost, error) {
	return r.get(ctx, func(p *model.BlogPost) bool { return p.ID == id })
}

func (r *kvBlogRepository) GetBySlug(ctx context.Context, slug string) (*model.BlogPost, error) {
	return r.get(ctx, func(p *model.BlogPost) bool { return p.Slug == slug })
}

func (r *kvBlogRepository) Create(ctx context.Context, p *model.BlogPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	posts, err := r.posts.load(ctx)
	if err != nil {
		return err
	}
	if findPost(posts, func(x *model.BlogPost) bool { return x.Slug == p.Slug }) != nil {
		return ErrDuplicate
	}
	now := r.now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return r.posts.save(ctx, append(posts, p))
}

func (r *kvBlogRepository) Update(ctx context.Context, id string, fn func(p *model.BlogPost) error) (*model.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	posts, err := r.posts.load(ctx)
	if err != nil {
		return nil, err
	}
	p := findPost(posts, func(x *model.BlogPost) bool { return x.ID == id })
	if p == nil {
		return nil, ErrNotFound
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.ID = id
	p.UpdatedAt = r.now().UTC()
	if err := r.posts.save(ctx, posts); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *kvBlogRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	posts, err := r.posts.load(ctx)
	if err != nil {
		return err
	}
	kept := posts[:0]
	for _, p := range posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(posts) {
		return ErrNotFound
	}
	if err := r.posts.save(ctx, kept); err != nil {
		return err
	}

	// 投票・閲覧履歴も削除する
	votes, err := r.votes.load(ctx)
	if err != nil {
		return err
	}
	keptVotes := votes[:0]
	for _, v := range votes {
		if v.PostID != id {
			keptVotes = append(keptVotes, v)
		}
	}
	if err := r.votes.save(ctx, keptVotes); err != nil {
		return err
	}
	views, err := r.views.load(ctx)
	if err != nil {
		return err
	}
	keptViews := views[:0]
	for _, v := range views {
		if v.PostID != id {
			keptViews = append(keptViews, v)
		}
	}
	return r.views.save(ctx, keptViews)
}

func (r *kvBlogRepository) RecordView(ctx context.Context, postID, viewerID string) (*model.BlogPost, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	posts, err := r.posts.load(ctx)
	if err != nil {
		return nil, false, err
	}
	p := findPost(posts, func(x *model.BlogPost) bool { return x.ID == postID })
	if p == nil {
		return nil, false, ErrNotFound
	}

	if viewerID != "" {
		views, err := r.views.load(ctx)
		if err != nil {
			return nil, false, err
		}
		for _, v := range views {
			if v.PostID == postID && v.ViewerID == viewerID {
				return p, false, nil
			}
		}
		if err := r.views.save(ctx, append(views, postView{PostID: postID, ViewerID: viewerID})); err != nil {
			return nil, false, err
		}
	}

	p.Views++
	if err := r.posts.save(ctx, posts); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (r *kvBlogRepository) ApplyVote(ctx context.Context, postID, userID string, kind model.VoteKind) (*model.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	posts, err := r.posts.load(ctx)
	if err != nil {
		return nil, err
	}
	p := findPost(posts, func(x *model.BlogPost) bool { return x.ID == postID })
	if p == nil {
		return nil, ErrNotFound
	}
	votes, err := r.votes.load(ctx)
	if err != nil {
		return nil, err
	}

	prev := model.VoteNone
	idx := -1
	for i, v := range votes {
		if v.PostID == postID && v.UserID == userID {
			prev, idx = v.Kind, i
			break
		}
	}
	if prev == kind {
		return p, nil
	}

	adjustVote(p, prev, -1)
	adjustVote(p, kind, +1)

	switch {
	case kind == model.VoteNone:
		votes = append(votes[:idx], votes[idx+1:]...)
	case idx >= 0:
		votes[idx].Kind = kind
	default:
		votes = append(votes, &model.PostVote{PostID: postID, UserID: userID, Kind: kind})
	}

	if err := r.posts.save(ctx, posts); err != nil {
		return nil, err
	}
	if err := r.votes.save(ctx, votes); err != nil {
		return nil, err
	}
	return p, nil
}

func adjustVote(p *model.BlogPost, kind model.VoteKind, delta int64) {
	switch kind {
	case model.VoteLike:
		p.Likes += delta
	case model.VoteDislike:
		p.Dislikes += delta
	}
}

func (r *kvBlogRepository) GetVote(ctx context.Context, postID, userID string) (model.VoteKind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	votes, err := r.votes.load(ctx)
	if err != nil {
		return model.VoteNone, err
	}
	for _, v := range votes {
		if v.PostID == postID && v.UserID == userID {
			return v.Kind, nil
		}
	}
	return model.VoteNone, nil
}
