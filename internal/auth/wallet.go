package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// LoginMessage is the text a wallet signs to obtain a platform token.
func LoginMessage(nonce string) string {
	return "Sign this message to authenticate with Seka. Nonce: " + nonce
}

// personal_sign hash
func messageHash(msg string) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return crypto.Keccak256Hash([]byte(prefix)).Bytes()
}

// SignNonce signs the login message with a hex private key and returns the
// 0x-prefixed signature with V in {27,28}, as MetaMask would.
func SignNonce(privateKeyHex, nonce string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(messageHash(LoginMessage(nonce)), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverAddress returns the checksummed address that produced signature.
func RecoverAddress(nonce, signature string) (string, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", err
	}
	if len(sigBytes) != 65 {
		return "", errors.New("signature must be 65 bytes")
	}
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}
	pubKey, err := crypto.SigToPub(messageHash(LoginMessage(nonce)), sigBytes)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}
