package storage

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get when no value is stored under the key.
var ErrNotExist = errors.New("storage: key does not exist")

// Storage はキー単位で JSON ドキュメントを保存するキーバリューストア。
// ローカルファイル実装の他、メモリ / Redis に差し替え可能。
type Storage interface {
	// Get は key に保存された値を返す。存在しない場合は ErrNotExist。
	Get(ctx context.Context, key string) ([]byte, error)

	// Set は key の値を丸ごと上書きする。
	Set(ctx context.Context, key string, value []byte) error

	// Delete は key を削除する。存在しない key は無視する。
	Delete(ctx context.Context, key string) error

	// Ping はバックエンドの疎通確認を行う。
	Ping(ctx context.Context) error
}

// Well-known keys. Each holds one JSON array, except KeyPayments which
// prefixes one JSON object per payment provider.
const (
	KeyUsers         = "athena_users"
	KeyDonations     = "athena_donations"
	KeyDonationGoals = "athena_donation_goals"
	KeySubscriptions = "athena_subscriptions"
	KeyPlans         = "athena_plans"
	KeyBlogPosts     = "athena_blog_posts"
	KeyBlogVotes     = "athena_blog_votes"
	KeyBlogViews     = "athena_blog_views"
	KeyPayments      = "athena_payments"
)
