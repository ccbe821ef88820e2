package repository

import (
	"context"

	"github.com/athena-pocket/backend/internal/model"
)

// DB は永続化バックエンドの生存確認を行うインターフェース
type DB interface {
	Ping(ctx context.Context) error
}

// UserRepository はユーザー永続化のインターフェース
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	FindByGitHubID(ctx context.Context, githubID string) (*model.User, error)
	// Create assigns ID/timestamps. Returns ErrDuplicate if the email is taken.
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, id string, fn func(u *model.User) error) (*model.User, error)
	List(ctx context.Context, limit, offset int) ([]*model.User, error)
}

// GoalRepository handles persistence for donation goals.
type GoalRepository interface {
	List(ctx context.Context) ([]*model.DonationGoal, error)
	GetByID(ctx context.Context, id string) (*model.DonationGoal, error)
	Create(ctx context.Context, g *model.DonationGoal) error
	// Update loads the goal, applies fn and stores the result atomically.
	// An error from fn aborts the update and is returned as-is.
	Update(ctx context.Context, id string, fn func(g *model.DonationGoal) error) (*model.DonationGoal, error)
	Delete(ctx context.Context, id string) error
}

// DonationRepository handles persistence for donations.
type DonationRepository interface {
	// Record appends d and applies it to its goal in one atomic step.
	// check runs against the locked goal before anything is written;
	// an error from check aborts the write and is returned as-is.
	Record(ctx context.Context, d *model.Donation, check func(g *model.DonationGoal) error) (*model.DonationGoal, error)
	GetByID(ctx context.Context, id string) (*model.Donation, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Donation, error)
	ListByGoal(ctx context.Context, goalID string) ([]*model.Donation, error)
	// MarkRefunded flags the donation refunded and reverts it from its goal.
	// Returns ErrAlreadyRefunded on a second call.
	MarkRefunded(ctx context.Context, id, refundID string) (*model.Donation, error)
}

// PlanRepository exposes the subscription plan catalog.
type PlanRepository interface {
	List(ctx context.Context) ([]*model.SubscriptionPlan, error)
	GetByID(ctx context.Context, id string) (*model.SubscriptionPlan, error)
}

// SubscriptionRepository handles persistence for user subscriptions.
type SubscriptionRepository interface {
	// Create は同じユーザーに終端でない購読があれば ErrOpenSubscription を返す。
	Create(ctx context.Context, s *model.UserSubscription) error
	GetByID(ctx context.Context, id string) (*model.UserSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]*model.UserSubscription, error)
	ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]*model.UserSubscription, error)
	// Update loads the subscription, applies fn and stores the result atomically.
	Update(ctx context.Context, id string, fn func(s *model.UserSubscription) error) (*model.UserSubscription, error)
}

// BlogRepository handles persistence for blog posts, votes and views.
type BlogRepository interface {
	List(ctx context.Context) ([]*model.BlogPost, error)
	GetByID(ctx context.Context, id string) (*model.BlogPost, error)
	GetBySlug(ctx context.Context, slug string) (*model.BlogPost, error)
	// Create returns ErrDuplicate when the slug is taken.
	Create(ctx context.Context, p *model.BlogPost) error
	Update(ctx context.Context, id string, fn func(p *model.BlogPost) error) (*model.BlogPost, error)
	Delete(ctx context.Context, id string) error
	// RecordView increments the view counter. With a non-empty viewerID the
	// view counts once per (post, viewer); counted reports whether it did.
	RecordView(ctx context.Context, postID, viewerID string) (p *model.BlogPost, counted bool, err error)
	// ApplyVote sets the user's vote on a post and adjusts counters.
	ApplyVote(ctx context.Context, postID, userID string, kind model.VoteKind) (*model.BlogPost, error)
	GetVote(ctx context.Context, postID, userID string) (model.VoteKind, error)
}
