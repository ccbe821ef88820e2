package repository

import (
	"context"
	"errors"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgUserRepository は UserRepository の PostgreSQL 実装
type PgUserRepository struct {
	pool *pgxpool.Pool
}

// NewPgUserRepository は PgUserRepository を生成する
func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

// Ping は DB 接続を確認する（DB インターフェース実装）
func (r *PgUserRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanUser(scan func(...any) error) (*model.User, error) {
	var u model.User
	var passwordHash, googleID, githubID *string
	err := scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsVerified, &passwordHash, &googleID, &githubID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if googleID != nil {
		u.GoogleID = *googleID
	}
	if githubID != nil {
		u.GitHubID = *githubID
	}
	return &u, nil
}

const userSelectCols = `id, email, name, role, is_verified, password_hash, google_id, github_id, created_at, updated_at`

func (r *PgUserRepository) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userSelectCols+` FROM users WHERE `+where, arg)
	return scanUser(row.Scan)
}

// FindByID は ID でユーザーを取得する
func (r *PgUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByGoogleID は Google ID でユーザーを取得する
func (r *PgUserRepository) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "google_id = $1", googleID)
}

// FindByGitHubID は GitHub ID でユーザーを取得する
func (r *PgUserRepository) FindByGitHubID(ctx context.Context, githubID string) (*model.User, error) {
	if githubID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "github_id = $1", githubID)
}

// FindByEmail はメールアドレスでユーザーを取得する（大文字小文字を区別しない）
func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "lower(email) = lower($1)", email)
}

// Create はユーザーを作成する。メールアドレス重複時は ErrDuplicate
func (r *PgUserRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, role, is_verified, password_hash, google_id, github_id)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
		 RETURNING created_at, updated_at`,
		user.ID, user.Email, user.Name, user.Role, user.IsVerified, user.PasswordHash, user.GoogleID, user.GitHubID,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Update は行ロックを取ったうえで fn を適用し保存する
func (r *PgUserRepository) Update(ctx context.Context, id string, fn func(u *model.User) error) (*model.User, error) {
	var out *model.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+userSelectCols+` FROM users WHERE id = $1 FOR UPDATE`, id)
		u, err := scanUser(row.Scan)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.ID = id
		err = tx.QueryRow(ctx,
			`UPDATE users SET
			   email = $2, name = $3, role = $4, is_verified = $5,
			   password_hash = NULLIF($6, ''), google_id = NULLIF($7, ''), github_id = NULLIF($8, ''),
			   updated_at = NOW()
			 WHERE id = $1
			 RETURNING updated_at`,
			id, u.Email, u.Name, u.Role, u.IsVerified, u.PasswordHash, u.GoogleID, u.GitHubID,
		).Scan(&u.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns users ordered by created_at desc.
func (r *PgUserRepository) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userSelectCols+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
