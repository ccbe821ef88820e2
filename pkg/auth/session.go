package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken   = errors.New("invalid token format")
	ErrInvalidSig     = errors.New("invalid signature")
	ErrSessionExpired = errors.New("session expired")
)

// DefaultSessionTTL はセッションの有効期間
const DefaultSessionTTL = 7 * 24 * time.Hour

func sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateSessionToken はユーザーIDと有効期限から署名付きセッショントークンを生成する
// 形式: base64(userID|expiresUnix).hexHMAC
func CreateSessionToken(userID string, expiresAt time.Time, secret []byte) string {
	payload := []byte(userID + "|" + strconv.FormatInt(expiresAt.Unix(), 10))
	return base64.URLEncoding.EncodeToString(payload) + "." + sign(payload, secret)
}

// VerifySessionToken はトークンを検証しユーザーIDを返す
func VerifySessionToken(token string, secret []byte, now time.Time) (string, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}
	payload, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidToken
	}
	if !hmac.Equal([]byte(sign(payload, secret)), []byte(parts[1])) {
		return "", ErrInvalidSig
	}

	userID, exp, ok := strings.Cut(string(payload), "|")
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if now.After(time.Unix(expUnix, 0)) {
		return "", ErrSessionExpired
	}
	return userID, nil
}

const sessionCookieName = "athena_session"
const minSecretLen = 32

// SessionCookieName はセッションクッキー名
func SessionCookieName() string {
	return sessionCookieName
}

// SessionSecretBytes は文字列からセッション署名用のバイト列を生成する（最低32バイト）
func SessionSecretBytes(s string) []byte {
	b := []byte(s)
	if len(b) < minSecretLen {
		out := make([]byte, minSecretLen)
		copy(out, b)
		return out
	}
	return b
}
