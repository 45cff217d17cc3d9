package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance bounds the age of a timestamped signature.
const DefaultSignatureTolerance = 5 * time.Minute

func hmacHex(secret string, parts ...[]byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// SignStripePayload builds a "t=<unix>,v1=<hex>" header over "<unix>.<payload>".
func SignStripePayload(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + hmacHex(secret, []byte(ts), []byte("."), payload)
}

func verifyStripeSignature(secret string, payload []byte, header string, now time.Time, tolerance time.Duration) bool {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if age := now.Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
		return false
	}

	expected := hmacHex(secret, []byte(ts), []byte("."), payload)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

// SignPayPalPayload returns the hex HMAC-SHA256 of payload.
func SignPayPalPayload(secret string, payload []byte) string {
	return hmacHex(secret, payload)
}

func verifyPayPalSignature(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(hmacHex(secret, payload)))
}
