package inputs

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SignatureValidityWindow bounds how old a timestamped signature may be.
const SignatureValidityWindow = 5 * time.Minute

// VerifySignature checks an inbound webhook signature against the shared
// secret. The expected signature is HMAC-SHA256(secret, "<timestamp>.<body>"),
// or HMAC-SHA256(secret, body) when no timestamp accompanies the request.
// A "v1=" prefix on the signature is stripped before comparison. When a
// timestamp is present it must be within the validity window, which defeats
// replay of captured requests.
//
// An empty secret skips verification entirely; this is an explicit opt-out
// and is logged.
func VerifySignature(secret string, body []byte, signature, timestamp string, now time.Time) error {
	if secret == "" {
		log.Warn().Msg("webhook signature verification disabled: no secret configured")
		return nil
	}
	if signature == "" {
		return fmt.Errorf("missing signature")
	}

	signature = strings.TrimPrefix(signature, "v1=")

	payload := body
	if timestamp != "" {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed timestamp %q", timestamp)
		}
		age := now.Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > SignatureValidityWindow {
			return fmt.Errorf("signature timestamp outside validity window")
		}
		payload = []byte(timestamp + "." + string(body))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) != 1 {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// VerifyCompositeSignature handles the multi-part header format
// "t=<ts>,v1=<sig>", splitting it into components before running the same
// HMAC check as VerifySignature.
func VerifyCompositeSignature(secret string, body []byte, header string, now time.Time) error {
	if secret == "" {
		log.Warn().Msg("webhook signature verification disabled: no secret configured")
		return nil
	}
	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			timestamp = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v1="):
			signature = strings.TrimPrefix(part, "v1=")
		}
	}
	if timestamp == "" || signature == "" {
		return fmt.Errorf("malformed signature header")
	}
	return VerifySignature(secret, body, signature, timestamp, now)
}

// VerifySharedToken compares a static bearer-style token in constant time.
// Used by providers that send a fixed secret instead of an HMAC.
func VerifySharedToken(secret, token string) error {
	if secret == "" {
		log.Warn().Msg("webhook token verification disabled: no secret configured")
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(token)) != 1 {
		return fmt.Errorf("token mismatch")
	}
	return nil
}

// VerifyIngress applies whichever authentication scheme the delivery
// headers carry: the composite "t=<ts>,v1=<sig>" signature, a shared token,
// or a plain signature with optional timestamp. Both the webhook and email
// ingress boundaries run this before any payload work.
func VerifyIngress(secret string, body []byte, headers map[string]string, now time.Time) error {
	signature := headerValue(headers, "X-Signature")
	if strings.Contains(signature, "t=") {
		return VerifyCompositeSignature(secret, body, signature, now)
	}
	if token := headerValue(headers, "X-Webhook-Token"); token != "" {
		return VerifySharedToken(secret, token)
	}
	return VerifySignature(secret, body, signature, headerValue(headers, "X-Timestamp"), now)
}

// Sign produces the "t=<ts>,v1=<sig>" header for an outbound payload, the
// counterpart of VerifyCompositeSignature. Used by the automation trigger
// to sign calls to external workflows.
func Sign(secret string, body []byte, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(body)))
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
