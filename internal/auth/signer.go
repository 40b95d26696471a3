package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Signer produces request signatures for one service identity.
type Signer struct {
	serviceID string
	secret    []byte
	now       func() time.Time
	nonce     func() string
}

func NewSigner(serviceID, secret string) *Signer {
	return &Signer{
		serviceID: serviceID,
		secret:    []byte(secret),
		now:       time.Now,
		nonce:     uuid.NewString,
	}
}

func (s *Signer) ServiceID() string {
	return s.serviceID
}

// Sign returns the headers for a request with the given method, path and body.
// Every call uses a fresh nonce.
func (s *Signer) Sign(method, path string, body []byte) Headers {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	nonce := s.nonce()
	return Headers{
		ServiceID: s.serviceID,
		Timestamp: ts,
		Nonce:     nonce,
		Signature: signaturePrefix + computeSignature(s.secret, method, path, ts, nonce, body),
	}
}

// CanonicalString is the exact byte sequence that is signed.
func CanonicalString(method, path, timestamp, nonce string, body []byte) string {
	sum := sha256.Sum256(body)
	return strings.Join([]string{
		strings.ToUpper(method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(sum[:]),
	}, "\n")
}

func computeSignature(secret []byte, method, path, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(CanonicalString(method, path, timestamp, nonce, body)))
	return hex.EncodeToString(mac.Sum(nil))
}
