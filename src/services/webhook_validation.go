package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"membershare/src/apperr"
)

const SignatureHeader = "X-Membershare-Signature"

// WebhookVerifier checks signed webhook deliveries.
type WebhookVerifier struct {
	secret  []byte
	maxSkew time.Duration
}

func NewWebhookVerifier(secret string, maxSkew time.Duration) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret), maxSkew: maxSkew}
}

// Sign returns the header value for body sent at ts.
func (v *WebhookVerifier) Sign(body []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + v.mac(unix, body)
}

func (v *WebhookVerifier) mac(unix string, body []byte) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(unix))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks header against body and rejects timestamps outside the
// allowed skew.
func (v *WebhookVerifier) Verify(header string, body []byte, now time.Time) error {
	unix, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	ts, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return apperr.New(apperr.CodeUnauthenticated, "invalid webhook timestamp")
	}

	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.maxSkew {
		return apperr.New(apperr.CodeUnauthenticated, "webhook timestamp out of allowed skew")
	}

	if !hmac.Equal([]byte(v.mac(unix, body)), []byte(strings.ToLower(sig))) {
		return apperr.New(apperr.CodeUnauthenticated, "invalid webhook signature")
	}
	return nil
}

func parseSignatureHeader(header string) (unix, sig string, err error) {
	if strings.TrimSpace(header) == "" {
		return "", "", apperr.New(apperr.CodeUnauthenticated, "missing webhook signature")
	}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			unix = value
		case "v1":
			sig = value
		}
	}
	if unix == "" || sig == "" {
		return "", "", apperr.New(apperr.CodeUnauthenticated, "malformed webhook signature")
	}
	return unix, sig, nil
}
