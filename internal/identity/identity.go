// Package identity resolves the local user's {id, role}.
//
// The profile endpoint is authoritative. When it is unreachable the last
// identity written to the Cache is used, and as a last resort the claims of
// the bearer token itself.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"homeservices/chatcore/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ErrIdentityUnavailable means no source produced an identity; chat stays disabled.
var ErrIdentityUnavailable = errors.New("identity: unable to load identity")

// Origin tells where a resolved identity came from.
type Origin int

const (
	FromProfile Origin = iota
	FromCache
	FromToken
)

func (o Origin) String() string {
	switch o {
	case FromProfile:
		return "profile"
	case FromCache:
		return "cache"
	case FromToken:
		return "token"
	}
	return "unknown"
}

// ProfileSource is the authoritative lookup, usually *api.Client.
type ProfileSource interface {
	Me(ctx context.Context) (models.Identity, error)
}

// Cache keeps the last known identity across runs.
type Cache interface {
	Load(ctx context.Context) (models.Identity, bool, error)
	Store(ctx context.Context, id models.Identity) error
}

// Resolver runs the fallback chain.
type Resolver struct {
	profile ProfileSource
	cache   Cache
	token   string
}

// NewResolver builds a resolver. cache may be nil and token may be empty.
func NewResolver(profile ProfileSource, cache Cache, token string) *Resolver {
	return &Resolver{profile: profile, cache: cache, token: token}
}

// Resolve returns the identity and its origin, or ErrIdentityUnavailable.
func (r *Resolver) Resolve(ctx context.Context) (models.Identity, Origin, error) {
	id, err := r.profile.Me(ctx)
	if err == nil {
		if r.cache != nil {
			if cerr := r.cache.Store(ctx, id); cerr != nil {
				log.Warn().Err(cerr).Msg("identity cache write failed")
			}
		}
		return id, FromProfile, nil
	}
	log.Warn().Err(err).Msg("profile lookup failed, trying fallbacks")

	if r.cache != nil {
		cached, ok, cerr := r.cache.Load(ctx)
		switch {
		case cerr != nil:
			log.Warn().Err(cerr).Msg("identity cache read failed")
		case ok:
			return cached, FromCache, nil
		}
	}

	if r.token != "" {
		claimed, terr := FromClaims(r.token)
		if terr == nil {
			return claimed, FromToken, nil
		}
		log.Debug().Err(terr).Msg("token carries no usable identity")
	}

	return models.Identity{}, 0, fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
}

// FromClaims reads {sub|userId|id, role} from a JWT without verifying it.
// The signature is checked by the backend on every request; the client only
// needs the claims to label its own messages.
func FromClaims(token string) (models.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return models.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	userID := claimString(claims, "userId", "user_id", "sub", "id")
	role := models.Role(strings.ToLower(claimString(claims, "role")))
	if userID == "" || !role.Valid() {
		return models.Identity{}, fmt.Errorf("%w: token without user id or role", models.ErrMalformedPayload)
	}
	return models.Identity{UserID: userID, Role: role}, nil
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
