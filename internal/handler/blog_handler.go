package handler

import (
	"errors"
	"net"
	"net/http"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
	"github.com/athena-pocket/backend/internal/service"
	"github.com/athena-pocket/backend/pkg/auth"
)

// BlogHandler はブログ記事のエンドポイントを扱う
type BlogHandler struct {
	blog  service.BlogService
	roles auth.RoleLookup
}

// NewBlogHandler は BlogHandler を生成する。
// roles は公開エンドポイントで管理者かどうかを判定するために使う
func NewBlogHandler(blog service.BlogService, roles auth.RoleLookup) *BlogHandler {
	return &BlogHandler{blog: blog, roles: roles}
}

// isAdmin は OptionalAuth でセットされたユーザーが管理者か判定する
func (h *BlogHandler) isAdmin(r *http.Request) bool {
	if auth.IsAdminFromContext(r.Context()) {
		return true
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || h.roles == nil {
		return false
	}
	role, err := h.roles(r.Context(), userID)
	return err == nil && role == auth.RoleAdmin
}

// List は GET /api/posts を処理する。管理者以外は公開済みのみ
func (h *BlogHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.PostStatus(r.URL.Query().Get("status"))
	if !h.isAdmin(r) {
		status = model.PostPublished
	}
	posts, err := h.blog.List(r.Context(), status)
	if err != nil {
		writeServiceError(w, err, "list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

// Search は GET /api/posts/search?q= を処理する
func (h *BlogHandler) Search(w http.ResponseWriter, r *http.Request) {
	posts, err := h.blog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err, "search")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type postResponse struct {
	*model.BlogPost
	UserVote model.VoteKind `json:"user_vote,omitempty"`
}

// Get は GET /api/posts/{slug} を処理する。未公開記事は管理者以外には 404
func (h *BlogHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.blog.GetBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeServiceError(w, err, "get")
		return
	}
	if p.Status != model.PostPublished && !h.isAdmin(r) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	resp := postResponse{BlogPost: p}
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		resp.UserVote, err = h.blog.UserVote(r.Context(), p.ID, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			writeServiceError(w, err, "get")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は POST /api/posts を処理する（管理者のみ）
func (h *BlogHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.PostInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.blog.Create(r.Context(), userID, in)
	if err != nil {
		writeServiceError(w, err, "create")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Update は PUT /api/posts/{id} を処理する（管理者のみ）
func (h *BlogHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch model.PostPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	p, err := h.blog.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, err, "update")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete は DELETE /api/posts/{id} を処理する（管理者のみ）
func (h *BlogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.blog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// viewerID はログインユーザーならその ID、ゲストなら接続元 IP を返す
func viewerID(r *http.Request) string {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// visible は記事が呼び出し元に見えるか確かめる。未公開記事は管理者以外 404
func (h *BlogHandler) visible(w http.ResponseWriter, r *http.Request, op string) bool {
	p, err := h.blog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, op)
		return false
	}
	if p.Status != model.PostPublished && !h.isAdmin(r) {
		writeError(w, http.StatusNotFound, "not_found")
		return false
	}
	return true
}

// View は POST /api/posts/{id}/view を処理する。同じ閲覧者は 1 回だけ数える
func (h *BlogHandler) View(w http.ResponseWriter, r *http.Request) {
	if !h.visible(w, r, "view") {
		return
	}
	p, err := h.blog.IncrementViews(r.Context(), r.PathValue("id"), viewerID(r))
	if err != nil {
		writeServiceError(w, err, "view")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"views": p.Views})
}

// Vote は POST /api/posts/{id}/vote を処理する。kind は like / dislike / none
func (h *BlogHandler) Vote(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Kind model.VoteKind `json:"kind"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.visible(w, r, "vote") {
		return
	}
	p, err := h.blog.Vote(r.Context(), r.PathValue("id"), userID, req.Kind)
	if err != nil {
		writeServiceError(w, err, "vote")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"likes": p.Likes, "dislikes": p.Dislikes, "user_vote": req.Kind})
}
