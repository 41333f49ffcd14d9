package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/tokenledger/internal/ledger"
)

var (
	// ErrInvalidToken covers malformed and badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for a token past its exp claim.
	ErrTokenExpired = errors.New("token expired")

	b64 = base64.RawURLEncoding
)

// SignHS256 creates a compact JWT string using HS256.
func SignHS256(claims map[string]any, secret []byte) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	h, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := b64.EncodeToString(h) + "." + b64.EncodeToString(c)
	return unsigned + "." + b64.EncodeToString(sign(unsigned, secret)), nil
}

// ParseAndVerifyHS256 verifies the token signature and returns its claims.
func ParseAndVerifyHS256(token string, secret []byte) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: format", ErrInvalidToken)
	}
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: signature encoding", ErrInvalidToken)
	}
	if !hmac.Equal(sig, sign(parts[0]+"."+parts[1], secret)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	}
	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", ErrInvalidToken)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: claims json", ErrInvalidToken)
	}
	return claims, nil
}

// SignCaller issues a bearer token naming account as its subject. A zero ttl
// issues a token without expiry.
func SignCaller(account ledger.AccountID, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	claims := map[string]any{
		"sub": strconv.FormatUint(uint64(account), 10),
		"iat": now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return SignHS256(claims, secret)
}

// ParseCaller verifies a bearer token and returns the account in its subject.
func ParseCaller(token string, secret []byte, now time.Time) (ledger.AccountID, error) {
	claims, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		return 0, err
	}
	if exp, ok := claims["exp"].(float64); ok && now.Unix() >= int64(exp) {
		return 0, ErrTokenExpired
	}
	sub, _ := claims["sub"].(string)
	account, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject", ErrInvalidToken)
	}
	return ledger.AccountID(account), nil
}

func sign(unsigned string, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	return mac.Sum(nil)
}
