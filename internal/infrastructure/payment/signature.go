package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook deliveries carry a signature header of the form
//
//	t=<unix seconds>,v1=<hex hmac-sha256 of "<t>.<raw body>">
//
// Verification must run over the raw, unparsed request body; decoding the
// body first would invalidate the signature.
const SignatureHeader = "AeglePay-Signature"

// DefaultTolerance bounds how stale a signed timestamp may be before the
// delivery is treated as a replay.
const DefaultTolerance = 5 * time.Minute

var (
	ErrBadSignature    = errors.New("webhook signature verification failed")
	ErrStaleSignature  = errors.New("webhook signature timestamp outside tolerance")
	ErrMalformedHeader = errors.New("malformed webhook signature header")
)

// ComputeSignature produces the header value for a body signed at ts.
// Used by the mock gateway and tests to forge valid deliveries.
func ComputeSignature(body []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// VerifyEvent checks the signature header against the raw body and, only
// after it passes, decodes the event.
func VerifyEvent(rawBody []byte, header, secret string, tolerance time.Duration) (*Event, error) {
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	age := time.Since(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return nil, ErrStaleSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(expected, got) {
		return nil, ErrBadSignature
	}

	var evt Event
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &evt, nil
}

func parseSignatureHeader(header string) (ts int64, sig string, err error) {
	if header == "" {
		return 0, "", ErrMalformedHeader
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, "", ErrMalformedHeader
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", ErrMalformedHeader
			}
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", ErrMalformedHeader
	}
	return ts, sig, nil
}
