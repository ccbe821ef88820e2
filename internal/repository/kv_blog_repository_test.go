package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/storage"
)

func seedPost(t *testing.T, repo BlogRepository, slug string) *model.BlogPost {
	t.Helper()
	p := &model.BlogPost{Title: slug, Slug: slug, Content: "body", Status: model.PostPublished}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestKVBlog_Create_DuplicateSlug(t *testing.T) {
	repo := NewKVBlogRepository(storage.NewMemoryStorage())
	seedPost(t, repo, "hello")
	err := repo.Create(context.Background(), &model.BlogPost{Title: "Hello", Slug: "hello"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestKVBlog_ApplyVote_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewKVBlogRepository(storage.NewMemoryStorage())
	p := seedPost(t, repo, "votes")

	for i := 0; i < 3; i++ {
		if _, err := repo.ApplyVote(ctx, p.ID, "u1", model.VoteLike); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := repo.GetByID(ctx, p.ID)
	if got.Likes != 1 || got.Dislikes != 0 {
		t.Fatalf("expected 1/0, got %d/%d", got.Likes, got.Dislikes)
	}

	// switch
	got, _ = repo.ApplyVote(ctx, p.ID, "u1", model.VoteDislike)
	if got.Likes != 0 || got.Dislikes != 1 {
		t.Fatalf("expected 0/1 after switch, got %d/%d", got.Likes, got.Dislikes)
	}
	_, _ = repo.ApplyVote(ctx, p.ID, "u2", model.VoteLike)

	// withdraw
	got, _ = repo.ApplyVote(ctx, p.ID, "u1", model.VoteNone)
	if got.Likes != 1 || got.Dislikes != 0 {
		t.Fatalf("expected 1/0 after withdraw, got %d/%d", got.Likes, got.Dislikes)
	}
	kind, _ := repo.GetVote(ctx, p.ID, "u1")
	if kind != model.VoteNone {
		t.Errorf("expected no vote, got %s", kind)
	}
	kind, _ = repo.GetVote(ctx, p.ID, "u2")
	if kind != model.VoteLike {
		t.Errorf("expected like for u2, got %s", kind)
	}
}

func TestKVBlog_RecordView_DedupesPerViewer(t *testing.T) {
	ctx := context.Background()
	repo := NewKVBlogRepository(storage.NewMemoryStorage())
	p := seedPost(t, repo, "views")

	_, counted, _ := repo.RecordView(ctx, p.ID, "v1")
	if !counted {
		t.Error("first view should count")
	}
	_, counted, _ = repo.RecordView(ctx, p.ID, "v1")
	if counted {
		t.Error("repeat view should not count")
	}
	_, _, _ = repo.RecordView(ctx, p.ID, "")
	got, _, _ := repo.RecordView(ctx, p.ID, "")
	if got.Views != 3 {
		t.Errorf("expected 3 views, got %d", got.Views)
	}
}

func TestKVBlog_Delete_RemovesVotes(t *testing.T) {
	ctx := context.Background()
	repo := NewKVBlogRepository(storage.NewMemoryStorage())
	p := seedPost(t, repo, "gone")
	_, _ = repo.ApplyVote(ctx, p.ID, "u1", model.VoteLike)

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetBySlug(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	kind, _ := repo.GetVote(ctx, p.ID, "u1")
	if kind != model.VoteNone {
		t.Errorf("expected vote removed, got %s", kind)
	}
}

func TestKVBlog_RoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	repo := NewKVBlogRepository(store)
	p := seedPost(t, repo, "persisted")
	if _, err := repo.ApplyVote(ctx, p.ID, "u1", model.VoteLike); err != nil {
		t.Fatal(err)
	}
	if _, _, err := repo.RecordView(ctx, p.ID, "v1"); err != nil {
		t.Fatal(err)
	}

	reopenedStore, err := storage.NewLocalStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	reopened := NewKVBlogRepository(reopenedStore)

	got, err := reopened.GetBySlug(ctx, "persisted")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.ID != p.ID || got.Likes != 1 || got.Views != 1 || got.Content != "body" {
		t.Errorf("post not restored: %+v", got)
	}
	if kind, _ := reopened.GetVote(ctx, p.ID, "u1"); kind != model.VoteLike {
		t.Errorf("expected like to survive reopen, got %s", kind)
	}
	// 閲覧の重複排除も再オープン後に効く
	if _, counted, _ := reopened.RecordView(ctx, p.ID, "v1"); counted {
		t.Error("repeat view after reopen should not count")
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := paginate(items, 2, 1); len(got) != 2 || got[0] != 2 {
		t.Errorf("unexpected page: %v", got)
	}
	if got := paginate(items, 0, 3); len(got) != 2 {
		t.Errorf("expected 2 items without limit, got %v", got)
	}
	if got := paginate(items, 10, 10); got == nil || len(got) != 0 {
		t.Errorf("expected empty page for out-of-range offset, got %#v", got)
	}
}
