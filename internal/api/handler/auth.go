package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/storage"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	identityKey = "identity"
	tokenIssuer = "chatcore-devserver"
	TokenTTL    = 72 * time.Hour
)

// GenerateJWT signs a token carrying the user's id and role.
func GenerateJWT(secret []byte, user models.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":    user.ID,
		"userId": user.ID,
		"role":   string(user.Role),
		"exp":    time.Now().Add(ttl).Unix(),
		"iss":    tokenIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken verifies a token issued by GenerateJWT.
func ParseToken(secret []byte, tokenString string) (models.Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return models.Identity{}, err
	}
	userID, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	id := models.Identity{UserID: userID, Role: models.Role(role)}
	if id.UserID == "" || !id.Role.Valid() {
		return models.Identity{}, fmt.Errorf("token without user or role")
	}
	return id, nil
}

// IssueToken hands out a token for a seeded user. Development only: there is
// no password, the email is the credential.
func (h *Handler) IssueToken(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	user, err := h.Storage.GetUserByEmail(req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	token, err := GenerateJWT(h.Secret, *user, TokenTTL)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": user.ID, "role": user.Role})
}

// AuthRequired accepts "Authorization: Bearer <token>" or, for clients that
// can't set headers on a WebSocket, a token query parameter.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			tokenString = strings.TrimPrefix(auth, "Bearer ")
		} else {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}

		id, err := ParseToken(h.Secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) models.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(models.Identity); ok {
			return id
		}
	}
	return models.Identity{}
}
