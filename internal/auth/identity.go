package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"SekaTable/internal/game/table"
	"SekaTable/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const guestIdentityKey = "seka:guest_identity"

var ErrInvalidToken = errors.New("invalid auth token")

// Claims is the platform JWT payload. Subject is the wallet address.
type Claims struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Resolver decides who the local participant is.
type Resolver struct {
	store  storage.KeyValueStore
	token  string
	secret []byte
}

func NewResolver(store storage.KeyValueStore, token, secret string) *Resolver {
	return &Resolver{store: store, token: token, secret: []byte(secret)}
}

// Resolve returns the authenticated identity when a token is configured,
// otherwise the session's guest identity, creating it on first use.
func (r *Resolver) Resolve(ctx context.Context) (table.Identity, error) {
	if r.token != "" {
		return r.fromToken()
	}
	return r.guest(ctx)
}

func (r *Resolver) fromToken() (table.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(r.token, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return table.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub := claims.Subject
	if sub == "" {
		return table.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	id := table.Identity{
		UserID:      sub,
		DisplayName: claims.Name,
		Email:       claims.Email,
		Avatar:      claims.Avatar,
	}
	if common.IsHexAddress(sub) {
		id.UserID = common.HexToAddress(sub).Hex()
	}
	if id.DisplayName == "" {
		id.DisplayName = shortName(id.UserID)
	}
	return id, nil
}

func (r *Resolver) guest(ctx context.Context) (table.Identity, error) {
	raw, ok, err := r.store.Get(ctx, guestIdentityKey)
	if err != nil {
		return table.Identity{}, err
	}
	if ok {
		var id table.Identity
		if err := json.Unmarshal([]byte(raw), &id); err == nil && id.UserID != "" {
			return id, nil
		}
	}

	id := NewGuestIdentity()
	data, err := json.Marshal(id)
	if err != nil {
		return table.Identity{}, err
	}
	if err := r.store.Set(ctx, guestIdentityKey, string(data), 0); err != nil {
		return table.Identity{}, err
	}
	return id, nil
}

func NewGuestIdentity() table.Identity {
	u := strings.ReplaceAll(uuid.NewString(), "-", "")
	userID := "guest_" + u
	return table.Identity{
		UserID:      userID,
		DisplayName: "Guest-" + strings.ToUpper(u[:4]),
		Email:       userID + "@guest.local",
	}
}

func shortName(userID string) string {
	if len(userID) <= 10 {
		return userID
	}
	return userID[:6] + "…" + userID[len(userID)-4:]
}
