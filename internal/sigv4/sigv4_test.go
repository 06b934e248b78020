package sigv4

import (
	"encoding/hex"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthorizationHeaderV4(t *testing.T) {
	header := "AWS4-HMAC-SHA256 Credential=AKIAEXAMPLE/20230101/us-east-1/s3/aws4_request, " +
		"SignedHeaders=host;x-amz-content-sha256;x-amz-date, " +
		"Signature=5d672d79c15b13162d9279b0855cfba6789a8edb4c82c400e06b5924a6f2b5d7"

	auth, err := ParseAuthorizationHeader(header)
	require.NoError(t, err)
	assert.Equal(t, VersionV4, auth.Version)
	assert.Equal(t, "AKIAEXAMPLE", auth.Credential.AccessKey)
	assert.Equal(t, "20230101", auth.Credential.Date)
	assert.Equal(t, "us-east-1", auth.Credential.Region)
	assert.Equal(t, "s3", auth.Credential.Service)
	assert.Equal(t, []string{"host", "x-amz-content-sha256", "x-amz-date"}, auth.SignedHeaders)
	assert.Equal(t, "5d672d79c15b13162d9279b0855cfba6789a8edb4c82c400e06b5924a6f2b5d7", auth.Signature)
}

func TestParseAuthorizationHeaderV2Legacy(t *testing.T) {
	auth, err := ParseAuthorizationHeader("AWS AKIAEXAMPLE:frJIUN8DYpKDtOLCwo//yllqDzg=")
	require.NoError(t, err)
	assert.Equal(t, VersionV2Legacy, auth.Version)
	assert.Equal(t, "AKIAEXAMPLE", auth.Credential.AccessKey)
	assert.Equal(t, "frJIUN8DYpKDtOLCwo//yllqDzg=", auth.Signature)
}

func TestParseAuthorizationHeaderRejects(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   error
	}{
		{"empty", "", ErrUnsupportedAuthorization},
		{"bearer", "Bearer token", ErrUnsupportedAuthorization},
		{"v4 short scope", "AWS4-HMAC-SHA256 Credential=AK/20230101/us-east-1/s3, SignedHeaders=host, Signature=ab", ErrMalformedAuthorization},
		{"v4 bad terminal", "AWS4-HMAC-SHA256 Credential=AK/20230101/us-east-1/s3/aws4_other, SignedHeaders=host, Signature=ab", ErrMalformedAuthorization},
		{"v4 missing signature", "AWS4-HMAC-SHA256 Credential=AK/20230101/us-east-1/s3/aws4_request, SignedHeaders=host", ErrMalformedAuthorization},
		{"v4 uppercase signed header", "AWS4-HMAC-SHA256 Credential=AK/20230101/us-east-1/s3/aws4_request, SignedHeaders=Host, Signature=ab", ErrInvalidSignedHeaders},
		{"v2 no colon", "AWS AKIAEXAMPLE", ErrMalformedAuthorization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAuthorizationHeader(tc.header)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSigningKeyMatchesAWSReferenceVector(t *testing.T) {
	// Published example from the AWS SigV4 documentation.
	key := SigningKey("wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY", "20120215", "us-east-1", "iam")
	assert.Equal(t,
		"f4780e2d9f65fa895f9c67b32ce1baf0b0d8a43505a000a1a9e090d414db404d",
		hex.EncodeToString(key))
}

func TestComputeSignatureDeterministic(t *testing.T) {
	auth := Authorization{
		Version: VersionV4,
		Credential: CredentialScope{
			AccessKey: "AKIAEXAMPLE", Date: "20230101", Region: "us-east-1",
			Service: "s3", Terminal: "aws4_request",
		},
		SignedHeaders: []string{"host", "x-amz-content-sha256", "x-amz-date"},
	}

	r := httptest.NewRequest("PUT", "http://localhost:9000/bucket/key.txt", nil)
	r.Header.Set("X-Amz-Date", "20230101T120000Z")
	r.Header.Set("X-Amz-Content-Sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

	first, err := ComputeSignature(r, auth, "secret")
	require.NoError(t, err)
	second, err := ComputeSignature(r, auth, "secret")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestComputeSignatureSensitivity(t *testing.T) {
	auth := Authorization{
		Version: VersionV4,
		Credential: CredentialScope{
			AccessKey: "AKIAEXAMPLE", Date: "20230101", Region: "us-east-1",
			Service: "s3", Terminal: "aws4_request",
		},
		SignedHeaders: []string{"host", "x-amz-content-sha256", "x-amz-date"},
	}
	base := func() (sig string) {
		r := httptest.NewRequest("PUT", "http://localhost:9000/bucket/key.txt", nil)
		r.Header.Set("X-Amz-Date", "20230101T120000Z")
		r.Header.Set("X-Amz-Content-Sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
		sig, err := ComputeSignature(r, auth, "secret")
		if err != nil {
			t.Fatalf("compute base signature: %v", err)
		}
		return sig
	}()

	t.Run("path change", func(t *testing.T) {
		r := httptest.NewRequest("PUT", "http://localhost:9000/bucket/key2.txt", nil)
		r.Header.Set("X-Amz-Date", "20230101T120000Z")
		r.Header.Set("X-Amz-Content-Sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
		sig, err := ComputeSignature(r, auth, "secret")
		require.NoError(t, err)
		assert.NotEqual(t, base, sig)
	})

	t.Run("payload hash change", func(t *testing.T) {
		r := httptest.NewRequest("PUT", "http://localhost:9000/bucket/key.txt", nil)
		r.Header.Set("X-Amz-Date", "20230101T120000Z")
		r.Header.Set("X-Amz-Content-Sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b856")
		sig, err := ComputeSignature(r, auth, "secret")
		require.NoError(t, err)
		assert.NotEqual(t, base, sig)
	})

	t.Run("signed header value change", func(t *testing.T) {
		r := httptest.NewRequest("PUT", "http://localhost:9000/bucket/key.txt", nil)
		r.Header.Set("X-Amz-Date", "20230101T120001Z")
		r.Header.Set("X-Amz-Content-Sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
		sig, err := ComputeSignature(r, auth, "secret")
		require.NoError(t, err)
		assert.NotEqual(t, base, sig)
	})

	t.Run("secret change", func(t *testing.T) {
		r := httptest.NewRequest("PUT", "http://localhost:9000/bucket/key.txt", nil)
		r.Header.Set("X-Amz-Date", "20230101T120000Z")
		r.Header.Set("X-Amz-Content-Sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
		sig, err := ComputeSignature(r, auth, "other-secret")
		require.NoError(t, err)
		assert.NotEqual(t, base, sig)
	})
}

func TestComputeSignatureMissingTimestamp(t *testing.T) {
	auth := Authorization{
		Credential:    CredentialScope{AccessKey: "AK", Date: "20230101", Region: "us-east-1", Service: "s3", Terminal: "aws4_request"},
		SignedHeaders: []string{"host"},
	}
	r := httptest.NewRequest("GET", "http://localhost:9000/bucket", nil)
	_, err := ComputeSignature(r, auth, "secret")
	assert.ErrorIs(t, err, ErrMissingTimestamp)
}

func TestSignaturesEqual(t *testing.T) {
	assert.True(t, SignaturesEqual("abc123", "abc123"))
	assert.True(t, SignaturesEqual("ABC123", "abc123"))
	assert.False(t, SignaturesEqual("abc123", "abc124"))
	assert.False(t, SignaturesEqual("abc", "abcd"))
	assert.False(t, SignaturesEqual("", ""))
}

func TestCanonicalQuerySortsAndEncodes(t *testing.T) {
	r := httptest.NewRequest("GET", "http://localhost:9000/bucket?prefix=a%20b&delimiter=%2F&max-keys=10", nil)
	canonical, err := BuildCanonicalRequest(r, []string{"host"}, UnsignedPayload)
	require.NoError(t, err)
	lines := splitLines(canonical)
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "delimiter=%2F&max-keys=10&prefix=a%20b", lines[2])
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}
