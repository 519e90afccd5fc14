// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"
	"textlens-go/pkg/log"
	"textlens-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 上下文中保存认证信息的键
const (
	ClaimsKey = "claims"
	TokenKey  = "token"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它从 Authorization 请求头中提取 token，校验签名、有效期与吊销状态，
// 并将 claims 与原始 token 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, revocation token.RevocationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "Token ausente ou malformado"})
			return
		}

		claims, err := Authenticate(c, jwtManager, revocation, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "Token inválido ou expirado"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(TokenKey, tokenString)
		c.Next()
	}
}

// Authenticate 校验 token 并检查是否已登出。WebSocket 握手也复用它。
func Authenticate(c *gin.Context, jwtManager *token.JWTManager, revocation token.RevocationStore, tokenString string) (*token.CustomClaims, error) {
	claims, err := jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	revoked, err := revocation.IsRevoked(c.Request.Context(), tokenString)
	if err != nil {
		// 吊销存储不可用时拒绝请求
		log.Errorf("[AuthMiddleware] 查询 token 吊销状态失败: %v", err)
		return nil, err
	}
	if revoked {
		return nil, errRevoked
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	t := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return t, t != ""
}
