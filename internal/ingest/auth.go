package ingest

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errNotAuthenticated = errors.New("not authenticated")

// Authenticator 校验 Authorization: Bearer <jwt>。
//
// 规则：HMAC 签名；必须带 exp 且未过期；Subjects 非空时 sub 必须在其中。
// Secret 为空时不做校验（本地开发）。
type Authenticator struct {
	Secret   []byte
	Subjects []string

	now func() time.Time
}

func (a Authenticator) Enabled() bool { return len(a.Secret) > 0 }

// Verify 返回通过校验的 subject。
func (a Authenticator) Verify(r *http.Request) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", errNotAuthenticated
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if a.now != nil {
		opts = append(opts, jwt.WithTimeFunc(a.now))
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("%w: %v", errNotAuthenticated, err)
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: 缺少 sub", errNotAuthenticated)
	}
	if len(a.Subjects) > 0 && !slices.Contains(a.Subjects, sub) {
		return "", fmt.Errorf("%w: sub %q 不在允许列表", errNotAuthenticated, sub)
	}
	return sub, nil
}
