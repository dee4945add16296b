package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"SekaTable/internal/storage"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func signToken(t *testing.T, claims Claims, key string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func TestResolveAuthenticatedIdentity(t *testing.T) {
	store := storage.NewMemoryStore()
	tok := signToken(t, Claims{
		Name:  "alice",
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, secret)

	id, err := NewResolver(store, tok, secret).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", id.UserID, "address is checksummed")
	assert.Equal(t, "alice", id.DisplayName)
	assert.Equal(t, "alice@example.com", id.Email)
}

func TestAuthenticatedIdentityOverridesGuest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	guest, err := NewResolver(store, "", secret).Resolve(ctx)
	require.NoError(t, err)

	tok := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"}}, secret)
	id, err := NewResolver(store, tok, secret).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id.UserID)
	assert.NotEqual(t, guest.UserID, id.UserID)
}

func TestResolveRejectsBadToken(t *testing.T) {
	store := storage.NewMemoryStore()
	tok := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}, "other-secret")

	_, err := NewResolver(store, tok, secret).Resolve(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidToken))

	expired := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}, secret)
	_, err = NewResolver(store, expired, secret).Resolve(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestGuestIdentityIsStable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first, err := NewResolver(store, "", secret).Resolve(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.UserID, "guest_"))
	assert.True(t, strings.HasSuffix(first.Email, "@guest.local"))
	assert.NotEmpty(t, first.DisplayName)

	// a fresh resolver on the same store is a "reload"
	second, err := NewResolver(store, "", secret).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGuestIdentitiesDifferAcrossSessions(t *testing.T) {
	ctx := context.Background()
	a, _ := NewResolver(storage.NewMemoryStore(), "", secret).Resolve(ctx)
	b, _ := NewResolver(storage.NewMemoryStore(), "", secret).Resolve(ctx)
	assert.NotEqual(t, a.UserID, b.UserID)
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := "0x" + hex.EncodeToString(crypto.FromECDSA(key))
	want := crypto.PubkeyToAddress(key.PublicKey).Hex()

	sig, err := SignNonce(keyHex, "abc123")
	require.NoError(t, err)

	got, err := RecoverAddress("abc123", sig)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	other, err := RecoverAddress("different", sig)
	require.NoError(t, err)
	assert.NotEqual(t, want, other)
}

func TestRecoverAddressRejectsShortSignature(t *testing.T) {
	_, err := RecoverAddress("n", "0xdeadbeef")
	assert.Error(t, err)
}
