// Package s3 models the request surface of the S3 HTTP protocol:
// request targets, operation dispatch, and bucket-name validation.
package s3

import (
	"errors"
	"net/http"
	"strings"
)

var ErrInvalidRequestPath = errors.New("invalid s3 request path")

// RequestTarget is the bucket/key a path-style request addresses.
// Both fields empty means the service root (ListBuckets).
type RequestTarget struct {
	Bucket string
	Key    string
}

func ParseRequestTarget(r *http.Request) (RequestTarget, error) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		return RequestTarget{}, nil
	}

	parts := strings.SplitN(path, "/", 2)
	bucket := parts[0]
	if !IsValidBucketName(bucket) {
		return RequestTarget{}, ErrInvalidRequestPath
	}
	key := ""
	if len(parts) > 1 {
		key = parts[1]
	}
	return RequestTarget{Bucket: bucket, Key: key}, nil
}

func ParseDispatchQuery(q map[string][]string) DispatchQuery {
	return DispatchQuery{
		ListType:         firstQuery(q, "list-type"),
		HasListType:      hasQuery(q, "list-type"),
		HasDelete:        hasQuery(q, "delete"),
		Delimiter:        firstQuery(q, "delimiter"),
		Prefix:           firstQuery(q, "prefix"),
		Continuation:     firstQuery(q, "continuation-token"),
		Marker:           firstQuery(q, "marker"),
		MaxKeys:          firstQuery(q, "max-keys"),
		HasUploads:       hasQuery(q, "uploads"),
		HasUploadID:      hasQuery(q, "uploadId"),
		HasPartNumber:    hasQuery(q, "partNumber"),
		UploadID:         firstQuery(q, "uploadId"),
		PartNumber:       firstQuery(q, "partNumber"),
		KeyMarker:        firstQuery(q, "key-marker"),
		UploadIDMarker:   firstQuery(q, "upload-id-marker"),
		MaxUploads:       firstQuery(q, "max-uploads"),
		PartNumberMarker: firstQuery(q, "part-number-marker"),
		MaxParts:         firstQuery(q, "max-parts"),
	}
}

func firstQuery(q map[string][]string, key string) string {
	if values, ok := q[key]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

func hasQuery(q map[string][]string, key string) bool {
	_, ok := q[key]
	return ok
}
