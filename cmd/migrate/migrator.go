package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// database は migrator が使う pgxpool.Pool のサブセット
type database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type migrator struct {
	db    database
	files fs.FS
}

// requiredTables はサーバーが Postgres モードで前提とするテーブル
var requiredTables = []string{"donation_goals", "donations", "subscriptions", "users"}

// requiredIndexes は整合性を DB 側で担保しているインデックス
var requiredIndexes = []string{"uq_subscriptions_open_user"}

// upMigrations は NNN_name.up.sql を番号順に並べ、拡張子を除いた名前で返す。
// 000_ は集約スキーマ用なので対象外。番号の重複はエラー。
func upMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	seen := make(map[int]string)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".up.sql")
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %q: missing NNN_ prefix", e.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", e.Name(), err)
		}
		if version == 0 {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %d", prev, name, version)
		}
		seen[version] = name
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// pending は applied に含まれない migration を順序を保って返す
func pending(all []string, applied map[string]bool) []string {
	out := make([]string, 0, len(all))
	for _, name := range all {
		if !applied[name] {
			out = append(out, name)
		}
	}
	return out
}

// missing は want のうち have に無いものを返す
func missing(want []string, have map[string]bool) []string {
	var out []string
	for _, w := range want {
		if !have[w] {
			out = append(out, w)
		}
	}
	return out
}

func (m *migrator) ensureSchemaMigrations(ctx context.Context) error {
	_, err := m.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

func (m *migrator) stringSet(ctx context.Context, sql string, args ...any) (map[string]bool, error) {
	rows, err := m.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (m *migrator) applied(ctx context.Context) (map[string]bool, error) {
	if err := m.ensureSchemaMigrations(ctx); err != nil {
		return nil, err
	}
	return m.stringSet(ctx, `SELECT name FROM schema_migrations`)
}

// up は未適用の migration を 1 件ずつ、記録と同じトランザクションで適用する
func (m *migrator) up(ctx context.Context) error {
	all, err := upMigrations(m.files)
	if err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}
	todo := pending(all, done)
	if len(todo) == 0 {
		slog.Info("all migrations already applied")
		return nil
	}
	for _, name := range todo {
		sql, err := fs.ReadFile(m.files, name+".up.sql")
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, m.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		slog.Info("migration completed", "migration", name)
	}
	slog.Info("migrations completed", "count", len(todo))
	return nil
}

func (m *migrator) status(ctx context.Context, w io.Writer) error {
	all, err := upMigrations(m.files)
	if err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}
	for _, name := range all {
		mark := "pending"
		if done[name] {
			mark = "applied"
		}
		fmt.Fprintf(w, "%-8s %s\n", mark, name)
	}
	return nil
}

// verify はスキーマが揃っていることを確認する。差分があればエラー
func (m *migrator) verify(ctx context.Context) error {
	tables, err := m.stringSet(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_name = ANY($1)`, requiredTables)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	indexes, err := m.stringSet(ctx,
		`SELECT indexname FROM pg_indexes
		 WHERE schemaname = current_schema() AND indexname = ANY($1)`, requiredIndexes)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	all, err := upMigrations(m.files)
	if err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	var problems []string
	for _, t := range missing(requiredTables, tables) {
		problems = append(problems, "table "+t)
	}
	for _, i := range missing(requiredIndexes, indexes) {
		problems = append(problems, "index "+i)
	}
	for _, p := range pending(all, done) {
		problems = append(problems, "migration "+p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("schema incomplete, missing: %s", strings.Join(problems, ", "))
	}
	slog.Info("schema verified", "tables", len(requiredTables), "migrations", len(all))
	return nil
}

func (m *migrator) execFile(ctx context.Context, name string) error {
	sql, err := fs.ReadFile(m.files, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if _, err := m.db.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec %s: %w", name, err)
	}
	return nil
}

func (m *migrator) dropAll(ctx context.Context) error {
	slog.Info("dropping all tables")
	if err := m.execFile(ctx, "000_drop_all.sql"); err != nil {
		return err
	}
	slog.Info("all tables dropped")
	return nil
}

// consolidated は集約スキーマを流し、全 migration を適用済みとして記録する
func (m *migrator) consolidated(ctx context.Context) error {
	slog.Info("applying consolidated schema")
	if err := m.execFile(ctx, "000_consolidated.sql"); err != nil {
		return err
	}
	if err := m.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	all, err := upMigrations(m.files)
	if err != nil {
		return err
	}
	for _, name := range all {
		if _, err := m.db.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, name); err != nil {
			return fmt.Errorf("mark %s: %w", name, err)
		}
	}
	slog.Info("consolidated schema applied", "migrations_marked", len(all))
	return nil
}
