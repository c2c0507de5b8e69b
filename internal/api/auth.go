package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Bearer token format: "sub:expiry:signature" where signature is
// base64url(HMAC-SHA256("sub:expiry", secret)). Token issuance lives
// outside this service; only verification happens here.
var (
	ErrTokenRequired  = errors.New("authorization token required")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenInvalid   = errors.New("token signature mismatch")
	ErrTokenExpired   = errors.New("token has expired")
)

type subjectCtxKey struct{}

// subjectFromContext retrieves the authenticated subject from the request
// context. Empty string and false if the request was not authenticated.
func subjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectCtxKey{}).(string)
	return sub, ok
}

// SignToken creates a bearer token for sub expiring at the given time.
// Exposed for tooling and tests; production issuance is out of scope.
func SignToken(secret []byte, sub string, expiry time.Time) string {
	message := fmt.Sprintf("%s:%d", sub, expiry.Unix())
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	signature := base64.URLEncoding.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%s:%s", message, signature)
}

// verifyToken checks the token signature and expiry, returning the subject.
// The HMAC is verified before the expiry check so response timing does not
// leak which timestamps are valid.
func verifyToken(secret []byte, token string) (string, error) {
	if token == "" {
		return "", ErrTokenRequired
	}

	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return "", ErrTokenMalformed
	}
	sub := parts[0]

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrTokenMalformed
	}

	message := fmt.Sprintf("%s:%d", sub, expiry)
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	expectedSig := h.Sum(nil)

	actualSig, err := base64.URLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrTokenMalformed
	}

	if subtle.ConstantTimeCompare(actualSig, expectedSig) != 1 {
		return "", ErrTokenInvalid
	}

	if time.Now().After(time.Unix(expiry, 0)) {
		return "", ErrTokenExpired
	}

	return sub, nil
}

// authMiddleware requires a valid bearer token and stores its subject in
// the request context. Failures return 401 with no internal detail.
func authMiddleware(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			sub, err := verifyToken(secret, token)
			if err != nil {
				logger.Warn("token verification failed",
					"error", err,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectCtxKey{}, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}
