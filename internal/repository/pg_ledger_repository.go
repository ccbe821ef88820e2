package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLedgerRepository is the PostgreSQL-backed GoalRepository and DonationRepository.
type PgLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewPgLedgerRepository returns a PostgreSQL-backed goal and donation repository.
func NewPgLedgerRepository(pool *pgxpool.Pool) *PgLedgerRepository {
	return &PgLedgerRepository{pool: pool}
}

const goalSelectCols = `id, title, COALESCE(description, ''), COALESCE(category, ''),
	target_amount, current_amount, currency, deadline, status, donor_count,
	rewards, milestones, created_at, updated_at`

func scanGoal(scan func(...any) error) (*model.DonationGoal, error) {
	g := &model.DonationGoal{}
	var rewards, milestones []byte
	var status string
	err := scan(
		&g.ID, &g.Title, &g.Description, &g.Category,
		&g.TargetAmount, &g.CurrentAmount, &g.Currency, &g.Deadline, &status, &g.DonorCount,
		&rewards, &milestones, &g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g.Status = model.GoalStatus(status)
	if err := json.Unmarshal(rewards, &g.Rewards); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(milestones, &g.Milestones); err != nil {
		return nil, err
	}
	return g, nil
}

func marshalGoalParts(g *model.DonationGoal) (rewards, milestones []byte, err error) {
	r := g.Rewards
	if r == nil {
		r = []model.Reward{}
	}
	m := g.Milestones
	if m == nil {
		m = []model.Milestone{}
	}
	if rewards, err = json.Marshal(r); err != nil {
		return nil, nil, err
	}
	if milestones, err = json.Marshal(m); err != nil {
		return nil, nil, err
	}
	return rewards, milestones, nil
}

// ---------------------------------------------------------------------------
// GoalRepository
// ---------------------------------------------------------------------------

func (r *PgLedgerRepository) List(ctx context.Context) ([]*model.DonationGoal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+goalSelectCols+` FROM donation_goals ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]*model.DonationGoal, 0)
	for rows.Next() {
		g, err := scanGoal(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

func (r *PgLedgerRepository) GetByID(ctx context.Context, id string) (*model.DonationGoal, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+goalSelectCols+` FROM donation_goals WHERE id = $1`, id)
	return scanGoal(row.Scan)
}

func (r *PgLedgerRepository) Create(ctx context.Context, g *model.DonationGoal) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	rewards, milestones, err := marshalGoalParts(g)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO donation_goals
		 (id, title, description, category, target_amount, current_amount, currency,
		  deadline, status, donor_count, rewards, milestones)
		 VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		g.ID, g.Title, g.Description, g.Category, g.TargetAmount, g.CurrentAmount, g.Currency,
		g.Deadline, string(g.Status), g.DonorCount, rewards, milestones,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PgLedgerRepository) Update(ctx context.Context, id string, fn func(g *model.DonationGoal) error) (*model.DonationGoal, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var out *model.DonationGoal
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+goalSelectCols+` FROM donation_goals WHERE id = $1 FOR UPDATE`, id)
		g, err := scanGoal(row.Scan)
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
		if err := updateGoalTx(ctx, tx, id, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func updateGoalTx(ctx context.Context, tx pgx.Tx, id string, g *model.DonationGoal) error {
	rewards, milestones, err := marshalGoalParts(g)
	if err != nil {
		return err
	}
	g.ID = id
	return tx.QueryRow(ctx,
		`UPDATE donation_goals SET
		   title = $2, description = NULLIF($3,''), category = NULLIF($4,''),
		   target_amount = $5, current_amount = $6, currency = $7, deadline = $8,
		   status = $9, donor_count = $10, rewards = $11, milestones = $12,
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		id, g.Title, g.Description, g.Category, g.TargetAmount, g.CurrentAmount, g.Currency,
		g.Deadline, string(g.Status), g.DonorCount, rewards, milestones,
	).Scan(&g.UpdatedAt)
}

func (r *PgLedgerRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM donation_goals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// DonationRepository
// ---------------------------------------------------------------------------

const donationSelectCols = `id, goal_id, COALESCE(user_id, ''), COALESCE(donor_name, ''),
	COALESCE(donor_email, ''), anonymous, amount, currency, COALESCE(message, ''),
	COALESCE(reward_id, ''), method, COALESCE(order_id, ''), COALESCE(transaction_id, ''),
	status, COALESCE(refund_id, ''), created_at`

func scanDonation(scan func(...any) error) (*model.Donation, error) {
	d := &model.Donation{}
	var method, status string
	err := scan(
		&d.ID, &d.GoalID, &d.UserID, &d.DonorName,
		&d.DonorEmail, &d.Anonymous, &d.Amount, &d.Currency, &d.Message,
		&d.RewardID, &method, &d.OrderID, &d.TransactionID,
		&status, &d.RefundID, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Method = model.PaymentMethod(method)
	d.Status = model.DonationStatus(status)
	return d, nil
}

func (r *PgLedgerRepository) Record(ctx context.Context, d *model.Donation, check func(g *model.DonationGoal) error) (*model.DonationGoal, error) {
	if !validID(d.GoalID) {
		return nil, ErrNotFound
	}
	var out *model.DonationGoal
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+goalSelectCols+` FROM donation_goals WHERE id = $1 FOR UPDATE`, d.GoalID)
		g, err := scanGoal(row.Scan)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(g); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		if d.Status == "" {
			d.Status = model.DonationCompleted
		}
		g.ApplyDonation(d.Amount, d.RewardID, now)

		_, err = tx.Exec(ctx,
			`INSERT INTO donations
			 (id, goal_id, user_id, donor_name, donor_email, anonymous, amount, currency, message,
			  reward_id, method, order_id, transaction_id, status, created_at)
			 VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), $6, $7, $8, NULLIF($9,''),
			         NULLIF($10,''), $11, NULLIF($12,''), NULLIF($13,''), $14, $15)`,
			d.ID, d.GoalID, d.UserID, d.DonorName, d.DonorEmail, d.Anonymous, d.Amount, d.Currency, d.Message,
			d.RewardID, string(d.Method), d.OrderID, d.TransactionID, string(d.Status), d.CreatedAt,
		)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
		if err := updateGoalTx(ctx, tx, g.ID, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgLedgerRepository) GetDonation(ctx context.Context, id string) (*model.Donation, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+donationSelectCols+` FROM donations WHERE id = $1`, id)
	return scanDonation(row.Scan)
}

func (r *PgLedgerRepository) listDonations(ctx context.Context, where string, arg any) ([]*model.Donation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+donationSelectCols+` FROM donations WHERE `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]*model.Donation, 0)
	for rows.Next() {
		d, err := scanDonation(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *PgLedgerRepository) ListByUser(ctx context.Context, userID string) ([]*model.Donation, error) {
	return r.listDonations(ctx, "user_id = $1", userID)
}

func (r *PgLedgerRepository) ListByGoal(ctx context.Context, goalID string) ([]*model.Donation, error) {
	if !validID(goalID) {
		return []*model.Donation{}, nil
	}
	return r.listDonations(ctx, "goal_id = $1", goalID)
}

func (r *PgLedgerRepository) MarkRefunded(ctx context.Context, id, refundID string) (*model.Donation, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var out *model.Donation
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+donationSelectCols+` FROM donations WHERE id = $1 FOR UPDATE`, id)
		d, err := scanDonation(row.Scan)
		if err != nil {
			return err
		}
		if d.Status == model.DonationRefunded {
			return ErrAlreadyRefunded
		}

		row = tx.QueryRow(ctx, `SELECT `+goalSelectCols+` FROM donation_goals WHERE id = $1 FOR UPDATE`, d.GoalID)
		g, err := scanGoal(row.Scan)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			g.RevertDonation(d.Amount, d.RewardID, time.Now().UTC())
			if err := updateGoalTx(ctx, tx, g.ID, g); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE donations SET status = $2, refund_id = $3 WHERE id = $1`,
			id, string(model.DonationRefunded), refundID); err != nil {
			return err
		}
		d.Status = model.DonationRefunded
		d.RefundID = refundID
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Donations returns the DonationRepository view of the ledger.
func (r *PgLedgerRepository) Donations() DonationRepository {
	return pgDonationView{r}
}

type pgDonationView struct {
	*PgLedgerRepository
}

func (v pgDonationView) GetByID(ctx context.Context, id string) (*model.Donation, error) {
	return v.GetDonation(ctx, id)
}
