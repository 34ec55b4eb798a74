package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/staffdesk/internal/pkg"
)

// CSRFHeaderName carries the token on htmx and fetch requests.
const CSRFHeaderName = "X-CSRF-Token"

const (
	csrfCookieName = "_csrf_token"
	csrfFormField  = "_csrf_token"
	csrfContextKey = "CSRFToken"
)

var (
	errCSRFMissing = errors.New("CSRF token missing")
	errCSRFInvalid = errors.New("CSRF token invalid")
)

// CSRF protects the HTML form routes with a signed double-submit cookie.
//
// Token format: hex(nonce) + "." + base64url(HMAC-SHA256(nonce, secret)).
//
// Safe methods get a token cookie (issued when missing or badly signed) and
// the token in gin.Context for templates. Unsafe methods must echo the
// cookie in the _csrf_token form field or the X-CSRF-Token header, which is
// how the htmx forms send it. Rejections answer 403; htmx callers also get
// a showToast trigger telling the user to reload.
//
// The JSON API is exempt by not registering this middleware on its group.
func CSRF(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, pkg.Response{
				Code:    http.StatusInternalServerError,
				Message: "csrf secret is required",
			})
		}
	}

	secure := gin.Mode() == gin.ReleaseMode
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if err := issueToken(c, secret, secure); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, pkg.Response{
					Code:    http.StatusInternalServerError,
					Message: "failed to generate CSRF token",
				})
				return
			}
			c.Next()

		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			token, err := verifyToken(c, secret)
			if err != nil {
				rejectCSRF(c, err)
				return
			}
			c.Set(csrfContextKey, token)
			c.Next()

		default:
			c.Next()
		}
	}
}

// GetCSRFToken returns the token stored by CSRF, or "".
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(csrfContextKey)
}

func issueToken(c *gin.Context, secret string, secure bool) error {
	token, err := c.Cookie(csrfCookieName)
	if err != nil || !validToken(token, secret) {
		token, err = generateToken(secret)
		if err != nil {
			return err
		}
		setCSRFCookie(c, token, secure)
	}
	c.Set(csrfContextKey, token)
	return nil
}

func verifyToken(c *gin.Context, secret string) (string, error) {
	cookieToken, err := c.Cookie(csrfCookieName)
	if err != nil || cookieToken == "" {
		return "", errCSRFMissing
	}

	requestToken := c.GetHeader(CSRFHeaderName)
	if requestToken == "" {
		requestToken = c.PostForm(csrfFormField)
	}
	if requestToken == "" {
		return "", errCSRFMissing
	}

	if !validToken(cookieToken, secret) || !validToken(requestToken, secret) {
		return "", errCSRFInvalid
	}
	if !tokensMatch(cookieToken, requestToken) {
		return "", errCSRFInvalid
	}
	return cookieToken, nil
}

func rejectCSRF(c *gin.Context, err error) {
	if c.GetHeader("HX-Request") == "true" {
		trigger, _ := json.Marshal(map[string]any{
			"showToast": map[string]string{
				"message": "Your session has expired, please reload the page",
				"type":    "error",
			},
		})
		c.Header("HX-Reswap", "none")
		c.Header("HX-Trigger", string(trigger))
	}
	c.AbortWithStatusJSON(http.StatusForbidden, pkg.Response{
		Code:    http.StatusForbidden,
		Message: err.Error(),
	})
}

// generateToken creates a new token: hex(nonce) + "." + signature.
func generateToken(secret string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	nonceHex := hex.EncodeToString(nonce)
	return nonceHex + "." + signNonce(nonceHex, secret), nil
}

func signNonce(nonce, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// validToken reports whether token is well formed and signed with secret.
func validToken(token, secret string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(signNonce(nonce, secret))) == 1
}

func tokensMatch(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// setCSRFCookie stores the token in a cookie readable by scripts (htmx
// copies it into the request header). Secure is set in release mode.
func setCSRFCookie(c *gin.Context, token string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
