package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminTokenScope = "deptrack-admin"

// AdminClaims 管理端 JWT 声明
type AdminClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// IssueAdminToken 签发管理端访问令牌（运营侧 cmd/token 使用）
func IssueAdminToken(secretKey, subject string, expire time.Duration) (string, error) {
	if secretKey == "" {
		return "", errors.New("admin jwt secret is empty")
	}
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	now := time.Now()
	claims := AdminClaims{
		Scope: adminTokenScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expire)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ParseAdminToken 校验管理端访问令牌
func ParseAdminToken(secretKey, tokenString string) (*AdminClaims, error) {
	if secretKey == "" {
		return nil, errors.New("admin jwt secret is empty")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &AdminClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Scope != adminTokenScope {
		return nil, errors.New("invalid admin token")
	}
	return claims, nil
}
