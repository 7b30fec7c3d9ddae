package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coursehub/internal/apperr"
)

var (
	ErrMissingSignature   = apperr.Verification("missing_signature", "signature header is missing")
	ErrMalformedSignature = apperr.Verification("malformed_signature", "signature header is malformed")
	ErrInvalidSignature   = apperr.Verification("invalid_signature", "signature does not match payload")
	ErrStaleSignature     = apperr.Verification("stale_signature", "signature timestamp outside tolerance")
	ErrVerifyTimeout      = apperr.Verification("verification_timeout", "signature verification timed out")
)

// Verifier checks processor signatures of the form
// "t=<unix seconds>,v1=<hex hmac-sha256 of t + "." + body>". Several v1
// entries may be present while the processor rotates secrets.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	timeout   time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance, timeout time.Duration) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (v *Verifier) Verify(ctx context.Context, payload []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > v.tolerance {
			return ErrStaleSignature
		}
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	done := make(chan bool, 1)
	go func() {
		expected := computeSignature(v.secret, ts, payload)
		for _, s := range sigs {
			if hmac.Equal(expected, s) {
				done <- true
				return
			}
		}
		done <- false
	}()

	select {
	case ok := <-done:
		if !ok {
			return ErrInvalidSignature
		}
		return nil
	case <-ctx.Done():
		return ErrVerifyTimeout.Wrap(ctx.Err())
	}
}

// Sign builds a header value for payload. Used by tests and local tooling
// that replays processor events.
func Sign(secret string, ts time.Time, payload []byte) string {
	sig := computeSignature([]byte(secret), ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
}

func computeSignature(secret []byte, ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var (
		ts    int64
		sigs  [][]byte
		hasTS bool
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedSignature.Wrap(err)
			}
			ts, hasTS = n, true
		case "v1":
			b, err := hex.DecodeString(val)
			if err != nil {
				continue
			}
			sigs = append(sigs, b)
		}
	}
	if !hasTS || len(sigs) == 0 {
		return 0, nil, ErrMalformedSignature
	}
	return ts, sigs, nil
}
