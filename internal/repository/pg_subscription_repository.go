package repository

import (
	"context"
	"errors"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPgSubscriptionRepository returns a PostgreSQL-backed SubscriptionRepository.
func NewPgSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &pgSubscriptionRepository{pool: pool}
}

const subscriptionSelectCols = `id, user_id, plan_id, status, auto_renew, method,
	COALESCE(provider_subscription_id, ''), started_at, current_period_start,
	current_period_end, next_billing_date, paused_at, cancelled_at, expired_at,
	created_at, updated_at`

func scanSubscription(scan func(...any) error) (*model.UserSubscription, error) {
	s := &model.UserSubscription{}
	var status, method string
	err := scan(
		&s.ID, &s.UserID, &s.PlanID, &status, &s.AutoRenew, &method,
		&s.ProviderSubscriptionID, &s.StartedAt, &s.CurrentPeriodStart,
		&s.CurrentPeriodEnd, &s.NextBillingDate, &s.PausedAt, &s.CancelledAt, &s.ExpiredAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	s.Method = model.PaymentMethod(method)
	return s, nil
}

func (r *pgSubscriptionRepository) Create(ctx context.Context, s *model.UserSubscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO subscriptions
		 (id, user_id, plan_id, status, auto_renew, method, provider_subscription_id,
		  started_at, current_period_start, current_period_end, next_billing_date,
		  paused_at, cancelled_at, expired_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, $9, $10, $11, $12, $13, $14)
		 RETURNING created_at, updated_at`,
		s.ID, s.UserID, s.PlanID, string(s.Status), s.AutoRenew, string(s.Method), s.ProviderSubscriptionID,
		s.StartedAt, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.NextBillingDate,
		s.PausedAt, s.CancelledAt, s.ExpiredAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		if violatedConstraint(err) == openSubscriptionIndex {
			return ErrOpenSubscription
		}
		return ErrDuplicate
	}
	return err
}

func (r *pgSubscriptionRepository) GetByID(ctx context.Context, id string) (*model.UserSubscription, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+subscriptionSelectCols+` FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row.Scan)
}

func (r *pgSubscriptionRepository) list(ctx context.Context, where string, arg any) ([]*model.UserSubscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+subscriptionSelectCols+` FROM subscriptions WHERE `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]*model.UserSubscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *pgSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*model.UserSubscription, error) {
	return r.list(ctx, "user_id = $1", userID)
}

func (r *pgSubscriptionRepository) ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]*model.UserSubscription, error) {
	return r.list(ctx, "status = $1", string(status))
}

func (r *pgSubscriptionRepository) Update(ctx context.Context, id string, fn func(s *model.UserSubscription) error) (*model.UserSubscription, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var out *model.UserSubscription
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+subscriptionSelectCols+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
		s, err := scanSubscription(row.Scan)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		s.ID = id
		err = tx.QueryRow(ctx,
			`UPDATE subscriptions SET
			   plan_id = $2, status = $3, auto_renew = $4, method = $5,
			   provider_subscription_id = NULLIF($6,''), started_at = $7,
			   current_period_start = $8, current_period_end = $9, next_billing_date = $10,
			   paused_at = $11, cancelled_at = $12, expired_at = $13, updated_at = NOW()
			 WHERE id = $1
			 RETURNING updated_at`,
			id, s.PlanID, string(s.Status), s.AutoRenew, string(s.Method),
			s.ProviderSubscriptionID, s.StartedAt,
			s.CurrentPeriodStart, s.CurrentPeriodEnd, s.NextBillingDate,
			s.PausedAt, s.CancelledAt, s.ExpiredAt,
		).Scan(&s.UpdatedAt)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
