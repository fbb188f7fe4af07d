package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// slackVersion is the signature scheme version Slack prefixes requests with.
const slackVersion = "v0"

// maxSignatureAge rejects replayed requests older than five minutes.
const maxSignatureAge = 300 * time.Second

// VerifySlackSignature checks a Slack request signature against the
// signing secret. The signature covers "v0:{timestamp}:{body}" with
// HMAC-SHA256. Requests with a timestamp more than five minutes from
// now are rejected regardless of signature.
func VerifySlackSignature(secret string, body []byte, timestamp, signature string, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request timestamp: %q", timestamp)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > maxSignatureAge {
		return fmt.Errorf("request timestamp too old")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%s:", slackVersion, timestamp)
	mac.Write(body)
	expected := slackVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
