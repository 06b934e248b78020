package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// SigningKey derives the V4 signing key by the chained HMAC construction:
// HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date), region), service), "aws4_request").
func SigningKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte(scopeTerminator))
}

// SignatureHex signs stringToSign with the derived key, lowercase hex.
func SignatureHex(signingKey []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))
}

// ComputeSignature recomputes the expected V4 signature for a request from
// the secret key and the parsed Authorization material. It is a pure
// function of its inputs and fails only when a required header is absent.
func ComputeSignature(r *http.Request, auth Authorization, secret string) (string, error) {
	canonical, err := BuildCanonicalRequest(r, auth.SignedHeaders, PayloadHash(r))
	if err != nil {
		return "", err
	}
	stringToSign, err := BuildStringToSign(canonical, RequestTimestamp(r), auth.Credential)
	if err != nil {
		return "", err
	}
	key := SigningKey(secret, auth.Credential.Date, auth.Credential.Region, auth.Credential.Service)
	return SignatureHex(key, stringToSign), nil
}

// SignaturesEqual compares two hex signatures in constant time: length check,
// then a full XOR accumulation over every byte with no early exit.
func SignaturesEqual(expected, actual string) bool {
	e := strings.ToLower(strings.TrimSpace(expected))
	a := strings.ToLower(strings.TrimSpace(actual))
	if len(e) == 0 || len(e) != len(a) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(e), []byte(a)) == 1
}

func hmacSHA256(key, value []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(value)
	return mac.Sum(nil)
}
