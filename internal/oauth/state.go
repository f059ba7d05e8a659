package oauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/actingweb/actingweb-go/internal/aw"
)

// stateBlob rides the upstream IdP round trip inside the state
// parameter, sealed so a tampering client cannot redirect the flow.
type stateBlob struct {
	ClientID        string    `json:"client_id,omitempty"`
	MCPState        string    `json:"mcp_state,omitempty"`
	RedirectURI     string    `json:"redirect_uri"`
	EmailHint       string    `json:"email_hint,omitempty"`
	Provider        string    `json:"provider"`
	TrustType       string    `json:"trust_type,omitempty"`
	CodeChallenge   string    `json:"code_challenge,omitempty"`
	ChallengeMethod string    `json:"challenge_method,omitempty"`
	IssuedAt        time.Time `json:"issued_at"`
}

// stateCodec seals state blobs with AES-GCM under a key derived from
// the configured state secret.
type stateCodec struct {
	aead cipher.AEAD
}

func newStateCodec(secret string) (*stateCodec, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, aw.Wrap(aw.KindFatal, err, "state cipher init failed")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, aw.Wrap(aw.KindFatal, err, "state cipher init failed")
	}
	return &stateCodec{aead: aead}, nil
}

func (c *stateCodec) seal(blob stateBlob) (string, error) {
	plain, err := json.Marshal(blob)
	if err != nil {
		return "", aw.Wrap(aw.KindFatal, err, "state encode failed")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", aw.Wrap(aw.KindFatal, err, "state nonce failed")
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *stateCodec) open(s string) (stateBlob, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) < c.aead.NonceSize() {
		return stateBlob{}, aw.Errorf(
			aw.KindUnauthenticated, "malformed state parameter",
		)
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return stateBlob{}, aw.Errorf(
			aw.KindUnauthenticated, "state parameter rejected",
		)
	}

	var blob stateBlob
	if err := json.Unmarshal(plain, &blob); err != nil {
		return stateBlob{}, aw.Errorf(
			aw.KindUnauthenticated, "state parameter rejected",
		)
	}
	return blob, nil
}
