package auth

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

const (
	HeaderServiceID = "X-Service-ID"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderSignature = "X-Signature"

	signaturePrefix = "sha256="
	maxNonceLength  = 128
)

var signaturePattern = regexp.MustCompile(`^sha256=[0-9a-f]{64}$`)

// Headers are the four values a signed request carries.
type Headers struct {
	ServiceID string
	Timestamp string
	Nonce     string
	Signature string
}

// HeadersFrom reads the signature headers from r.
func HeadersFrom(h http.Header) Headers {
	return Headers{
		ServiceID: h.Get(HeaderServiceID),
		Timestamp: h.Get(HeaderTimestamp),
		Nonce:     h.Get(HeaderNonce),
		Signature: h.Get(HeaderSignature),
	}
}

// Apply sets the signature headers on h.
func (s Headers) Apply(h http.Header) {
	h.Set(HeaderServiceID, s.ServiceID)
	h.Set(HeaderTimestamp, s.Timestamp)
	h.Set(HeaderNonce, s.Nonce)
	h.Set(HeaderSignature, s.Signature)
}

// parse checks presence and shape of every header and returns the signed
// unix timestamp.
func (s Headers) parse() (int64, error) {
	if strings.TrimSpace(s.ServiceID) == "" || s.Timestamp == "" || s.Nonce == "" || s.Signature == "" {
		return 0, wardenErrors.Wrap(wardenErrors.ErrUnauthenticated, "missing signature headers")
	}
	if len(s.Nonce) > maxNonceLength || strings.ContainsAny(s.Nonce, " \t\r\n:") {
		return 0, wardenErrors.Wrap(wardenErrors.ErrUnauthenticated, "malformed nonce")
	}
	ts, err := strconv.ParseInt(s.Timestamp, 10, 64)
	if err != nil {
		return 0, wardenErrors.Wrap(wardenErrors.ErrUnauthenticated, "malformed timestamp")
	}
	if !signaturePattern.MatchString(s.Signature) {
		return 0, wardenErrors.Wrap(wardenErrors.ErrUnauthenticated, "malformed signature")
	}
	return ts, nil
}
