// Package sigv4 implements the server side of AWS Signature Version 4:
// parsing Authorization material into typed structures and deterministically
// recomputing the signature a client should have produced. The legacy
// Signature Version 2 header is parsed as well so callers can identify the
// access key, but no V2 signature math is implemented here.
package sigv4

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const (
	// AuthHeaderPrefix introduces a V4 Authorization header.
	AuthHeaderPrefix = "AWS4-HMAC-SHA256"
	// LegacyAuthPrefix introduces a V2 "AWS <accessKey>:<signature>" header.
	LegacyAuthPrefix = "AWS "

	scopeTerminator = "aws4_request"

	// UnsignedPayload is the sentinel used when no payload hash was signed.
	UnsignedPayload = "UNSIGNED-PAYLOAD"
)

var (
	ErrMalformedAuthorization   = errors.New("malformed authorization header")
	ErrUnsupportedAuthorization = errors.New("unsupported authorization scheme")
	ErrInvalidSignedHeaders     = errors.New("invalid signed headers")
	ErrMissingTimestamp         = errors.New("missing request timestamp")
)

// Version distinguishes the two supported Authorization formats.
type Version int

const (
	VersionV4 Version = iota
	VersionV2Legacy
)

// CredentialScope is the <accessKey>/<date>/<region>/<service>/aws4_request
// tuple from the Credential= component.
type CredentialScope struct {
	AccessKey string
	Date      string
	Region    string
	Service   string
	Terminal  string
}

func (s CredentialScope) String() string {
	return s.Date + "/" + s.Region + "/" + s.Service + "/" + s.Terminal
}

// Authorization is the typed result of parsing an Authorization header. For
// the legacy V2 format only Version, the access key and Signature are
// populated.
type Authorization struct {
	Version       Version
	Credential    CredentialScope
	SignedHeaders []string
	Signature     string
}

// ParseAuthorizationHeader parses either supported Authorization format into
// a typed structure. Anything else is ErrUnsupportedAuthorization; a
// recognized prefix with broken fields is ErrMalformedAuthorization.
func ParseAuthorizationHeader(value string) (Authorization, error) {
	switch {
	case strings.HasPrefix(value, AuthHeaderPrefix+" "):
		return parseV4(strings.TrimPrefix(value, AuthHeaderPrefix+" "))
	case strings.HasPrefix(value, LegacyAuthPrefix):
		return parseV2Legacy(strings.TrimPrefix(value, LegacyAuthPrefix))
	default:
		return Authorization{}, ErrUnsupportedAuthorization
	}
}

func parseV4(rest string) (Authorization, error) {
	parts := map[string]string{}
	for _, field := range strings.Split(rest, ",") {
		kv := strings.SplitN(strings.TrimSpace(field), "=", 2)
		if len(kv) != 2 {
			return Authorization{}, ErrMalformedAuthorization
		}
		parts[kv[0]] = kv[1]
	}

	scope, err := parseCredentialScope(parts["Credential"])
	if err != nil {
		return Authorization{}, err
	}
	signedHeaders, err := ParseSignedHeaders(parts["SignedHeaders"])
	if err != nil {
		return Authorization{}, err
	}
	signature := strings.TrimSpace(parts["Signature"])
	if signature == "" {
		return Authorization{}, ErrMalformedAuthorization
	}

	return Authorization{
		Version:       VersionV4,
		Credential:    scope,
		SignedHeaders: signedHeaders,
		Signature:     signature,
	}, nil
}

func parseV2Legacy(rest string) (Authorization, error) {
	accessKey, signature, ok := strings.Cut(rest, ":")
	if !ok || strings.TrimSpace(accessKey) == "" || strings.TrimSpace(signature) == "" {
		return Authorization{}, ErrMalformedAuthorization
	}
	return Authorization{
		Version:    VersionV2Legacy,
		Credential: CredentialScope{AccessKey: strings.TrimSpace(accessKey)},
		Signature:  strings.TrimSpace(signature),
	}, nil
}

func parseCredentialScope(value string) (CredentialScope, error) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 5 {
		return CredentialScope{}, ErrMalformedAuthorization
	}
	for _, p := range parts {
		if p == "" {
			return CredentialScope{}, ErrMalformedAuthorization
		}
	}
	if parts[4] != scopeTerminator {
		return CredentialScope{}, ErrMalformedAuthorization
	}
	return CredentialScope{
		AccessKey: parts[0],
		Date:      parts[1],
		Region:    parts[2],
		Service:   parts[3],
		Terminal:  parts[4],
	}, nil
}

// ParseSignedHeaders splits the SignedHeaders= list. Header names must be
// lowercase per SigV4; their order is preserved as the client gave it and is
// used verbatim when canonicalizing.
func ParseSignedHeaders(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrInvalidSignedHeaders
	}
	headers := strings.Split(value, ";")
	for _, header := range headers {
		h := strings.TrimSpace(header)
		if h == "" || strings.ToLower(h) != h {
			return nil, ErrInvalidSignedHeaders
		}
	}
	return headers, nil
}

// PayloadHash returns the hash value the client signed: the
// x-amz-content-sha256 header when present, else the unsigned sentinel.
func PayloadHash(r *http.Request) string {
	if v := r.Header.Get("X-Amz-Content-Sha256"); v != "" {
		return v
	}
	return UnsignedPayload
}

// RequestTimestamp returns the raw request timestamp: x-amz-date, falling
// back to the standard Date header.
func RequestTimestamp(r *http.Request) string {
	if v := r.Header.Get("X-Amz-Date"); v != "" {
		return v
	}
	return r.Header.Get("Date")
}

// BuildCanonicalRequest assembles the canonical request string:
// METHOD\nURI\nQUERY\nHEADERS\n\nSIGNED_HEADERS\nPAYLOAD_HASH.
func BuildCanonicalRequest(r *http.Request, signedHeaders []string, payloadHash string) (string, error) {
	if len(signedHeaders) == 0 {
		return "", ErrInvalidSignedHeaders
	}
	if payloadHash == "" {
		payloadHash = UnsignedPayload
	}

	rawPath := r.URL.RawPath
	if rawPath == "" {
		rawPath = r.URL.EscapedPath()
	}
	canonHeaders, signed := canonicalHeaders(r.Header, r.Host, signedHeaders)

	return strings.Join([]string{
		r.Method,
		canonicalURI(rawPath),
		canonicalQuery(r.URL.Query()),
		canonHeaders,
		signed,
		payloadHash,
	}, "\n"), nil
}

// BuildStringToSign assembles
// AWS4-HMAC-SHA256\nTIMESTAMP\nSCOPE\nHEX(SHA256(canonical)). The timestamp
// is the raw header value the client signed, not a reformatted parse of it.
func BuildStringToSign(canonicalRequest, rawTimestamp string, scope CredentialScope) (string, error) {
	if rawTimestamp == "" {
		return "", ErrMissingTimestamp
	}
	sum := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		AuthHeaderPrefix,
		rawTimestamp,
		scope.String(),
		hex.EncodeToString(sum[:]),
	}, "\n"), nil
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i := range parts {
		decoded := parts[i]
		if unescaped, err := url.PathUnescape(parts[i]); err == nil {
			decoded = unescaped
		}
		parts[i] = uriEncode(decoded, true)
	}
	result := strings.Join(parts, "/")
	if !strings.HasPrefix(result, "/") {
		result = "/" + result
	}
	return result
}

func canonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "X-Amz-Signature" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		vals := append([]string(nil), values[key]...)
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, uriEncode(key, true)+"="+uriEncode(v, true))
		}
	}
	return strings.Join(pairs, "&")
}

// canonicalHeaders emits name:value lines in the order the client listed the
// signed headers. Values are trimmed with internal whitespace runs collapsed
// to single spaces.
func canonicalHeaders(headers http.Header, host string, signedHeaders []string) (string, string) {
	lines := make([]string, 0, len(signedHeaders))
	for _, name := range signedHeaders {
		lower := strings.ToLower(strings.TrimSpace(name))
		var value string
		if lower == "host" {
			value = host
		} else {
			raw := headers.Values(http.CanonicalHeaderKey(lower))
			clean := make([]string, 0, len(raw))
			for _, v := range raw {
				clean = append(clean, strings.Join(strings.Fields(v), " "))
			}
			value = strings.Join(clean, ",")
		}
		lines = append(lines, lower+":"+strings.Join(strings.Fields(value), " "))
	}
	return strings.Join(lines, "\n") + "\n", strings.Join(signedHeaders, ";")
}

// uriEncode percent-encodes per the SigV4 rules: unreserved characters pass
// through, everything else becomes %XX with uppercase hex.
func uriEncode(value string, encodeSlash bool) string {
	const hexChars = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(value) * 3)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		if c == '/' && !encodeSlash {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexChars[c>>4])
		b.WriteByte(hexChars[c&0x0F])
	}
	return b.String()
}
