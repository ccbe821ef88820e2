package handler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/service"
	"github.com/athena-pocket/backend/pkg/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const oauthStateCookieName = "oauth_state"

// generateOAuthState は CSRF 対策用のランダム state 文字列を生成する
func generateOAuthState() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

// verifyOAuthState は state クッキーとクエリパラメータを照合する
func verifyOAuthState(r *http.Request) bool {
	cookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	return cookie.Value == r.URL.Query().Get("state")
}

var githubEndpoint = oauth2.Endpoint{
	AuthURL:  "https://github.com/login/oauth/authorize",
	TokenURL: "https://github.com/login/oauth/access_token",
}

// AuthHandler は認証関連の HTTP ハンドラ
type AuthHandler struct {
	authService   service.AuthService
	googleConfig  *oauth2.Config
	githubConfig  *oauth2.Config
	sessionSecret []byte
	sessionTTL    time.Duration
	frontendURL   string
	secure        bool
	now           func() time.Time

	googleUserInfoURL string
	githubAPIURL      string
}

// AuthConfig は AuthHandler の設定
type AuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	BackendURL         string
	SessionSecret      string
	SessionTTL         time.Duration // 0 なら auth.DefaultSessionTTL
	FrontendURL        string
	SecureCookies      bool
}

// NewAuthHandler は AuthHandler を生成する（DI: AuthService を注入）
func NewAuthHandler(authService service.AuthService, cfg AuthConfig) *AuthHandler {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	return &AuthHandler{
		authService: authService,
		googleConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.BackendURL + "/api/auth/google/callback",
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		githubConfig: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.BackendURL + "/api/auth/github/callback",
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     githubEndpoint,
		},
		sessionSecret:     auth.SessionSecretBytes(cfg.SessionSecret),
		sessionTTL:        ttl,
		frontendURL:       cfg.FrontendURL,
		secure:            cfg.SecureCookies,
		now:               time.Now,
		googleUserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		githubAPIURL:      "https://api.github.com",
	}
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
	}
	if maxAge < 0 {
		c.Expires = time.Unix(0, 0)
	}
	http.SetCookie(w, c)
}

// startSession は署名付きセッションクッキーを発行する
func (h *AuthHandler) startSession(w http.ResponseWriter, userID string) {
	token := auth.CreateSessionToken(userID, h.now().Add(h.sessionTTL), h.sessionSecret)
	h.setCookie(w, auth.SessionCookieName(), token, int(h.sessionTTL.Seconds()))
}

func (h *AuthHandler) failRedirect(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.frontendURL+"/?error="+code, http.StatusFound)
}

// ---------------------------------------------------------------------------
// Email / password
// ---------------------------------------------------------------------------

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "register")
		return
	}
	h.startSession(w, user.ID)
	writeJSON(w, http.StatusCreated, user.View())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("login rejected", "error", err)
		writeServiceError(w, err, "login")
		return
	}
	h.startSession(w, user.ID)
	writeJSON(w, http.StatusOK, user.View())
}

// Logout はログアウトする（POST /api/auth/logout）
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setCookie(w, auth.SessionCookieName(), "", -1)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ---------------------------------------------------------------------------
// OAuth
// ---------------------------------------------------------------------------

func (h *AuthHandler) loginURL(w http.ResponseWriter, cfg *oauth2.Config) {
	state := generateOAuthState()
	h.setCookie(w, oauthStateCookieName, state, 600)
	writeJSON(w, http.StatusOK, map[string]string{"url": cfg.AuthCodeURL(state)})
}

// exchange はコールバックの state と code を検証し、認可済み HTTP クライアントを返す
func (h *AuthHandler) exchange(w http.ResponseWriter, r *http.Request, cfg *oauth2.Config) (*http.Client, bool) {
	ok := verifyOAuthState(r)
	h.setCookie(w, oauthStateCookieName, "", -1)
	if !ok {
		h.failRedirect(w, r, "invalid_state")
		return nil, false
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		h.failRedirect(w, r, "no_code")
		return nil, false
	}
	token, err := cfg.Exchange(r.Context(), code)
	if err != nil {
		slog.Warn("oauth exchange failed", "error", err)
		h.failRedirect(w, r, "exchange_failed")
		return nil, false
	}
	return cfg.Client(r.Context(), token), true
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

func (h *AuthHandler) finishOAuth(w http.ResponseWriter, r *http.Request, user *model.User, err error) {
	if err != nil {
		slog.Error("oauth user lookup failed", "error", err)
		h.failRedirect(w, r, "create_user_failed")
		return
	}
	h.startSession(w, user.ID)
	http.Redirect(w, r, h.frontendURL+"/", http.StatusFound)
}

// GoogleLoginURL は Google OAuth の認証 URL を返す（GET /api/auth/google/login）
func (h *AuthHandler) GoogleLoginURL(w http.ResponseWriter, r *http.Request) {
	h.loginURL(w, h.googleConfig)
}

// GoogleCallback は OAuth コールバックを処理する（GET /api/auth/google/callback）
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	client, ok := h.exchange(w, r, h.googleConfig)
	if !ok {
		return
	}
	var info service.GoogleUserInfo
	var body struct {
		Sub   string `json:"sub"`
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(client, h.googleUserInfoURL, &body); err != nil {
		h.failRedirect(w, r, "userinfo_failed")
		return
	}
	info.Sub, info.Email, info.Name = body.Sub, body.Email, body.Name
	if info.Sub == "" {
		// v2 userinfo は sub ではなく id を返す
		info.Sub = body.ID
	}
	user, err := h.authService.GetOrCreateUserFromGoogle(r.Context(), &info)
	h.finishOAuth(w, r, user, err)
}

// GitHubLoginURL は GitHub OAuth の認証 URL を返す（GET /api/auth/github/login）
func (h *AuthHandler) GitHubLoginURL(w http.ResponseWriter, r *http.Request) {
	h.loginURL(w, h.githubConfig)
}

// GitHubCallback は OAuth コールバックを処理する（GET /api/auth/github/callback）
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	client, ok := h.exchange(w, r, h.githubConfig)
	if !ok {
		return
	}
	var info service.GitHubUserInfo
	var body struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(client, h.githubAPIURL+"/user", &body); err != nil {
		h.failRedirect(w, r, "userinfo_failed")
		return
	}
	info.ID, info.Login, info.Email, info.Name = body.ID, body.Login, body.Email, body.Name

	// GitHub は email が private の場合 null になるため、別 API で取得を試みる
	if info.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if getJSON(client, h.githubAPIURL+"/user/emails", &emails) == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					info.Email = e.Email
					break
				}
			}
		}
	}

	user, err := h.authService.GetOrCreateUserFromGitHub(r.Context(), &info)
	h.finishOAuth(w, r, user, err)
}
