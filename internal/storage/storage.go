// Package storage implements filesystem-backed bucket, object and
// multipart-upload primitives. Object keys map directly onto relative
// paths under the bucket directory, so a stored tree stays browsable
// with ordinary tools.
package storage

import (
	"context"
	"io"
	"time"
)

// BucketInfo summarizes a bucket for listings.
type BucketInfo struct {
	Name         string
	CreationDate time.Time
}

// ObjectInfo summarizes a stored object for list results and write
// acknowledgements.
type ObjectInfo struct {
	Bucket   string
	Key      string
	Size     int64
	ETag     string
	Modified time.Time
}

// ObjectStat carries what GET and HEAD responses need. ETag is not
// persisted for objects at rest, so reads do not report one.
type ObjectStat struct {
	ContentType   string
	ContentLength int64
	LastModified  time.Time
}

type ListObjectsOptions struct {
	Prefix string
	// MaxKeys caps the number of returned objects; zero or negative
	// means the default cap.
	MaxKeys int
}

type ListObjectsResult struct {
	Objects     []ObjectInfo
	IsTruncated bool
}

type CompletedPart struct {
	PartNumber int
	ETag       string
}

type MultipartUpload struct {
	Bucket    string
	Key       string
	UploadID  string
	Initiated time.Time
}

type MultipartPartInfo struct {
	PartNumber   int
	Size         int64
	ETag         string
	LastModified time.Time
}

type ListPartsOptions struct {
	PartNumberMarker int
	MaxParts         int
}

type ListPartsResult struct {
	Parts                []MultipartPartInfo
	IsTruncated          bool
	NextPartNumberMarker int
}

// Backend defines the bucket and object primitives the API layer is
// written against.
type Backend interface {
	CreateBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error
	HeadBucket(ctx context.Context, bucket string) error
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	PutObject(ctx context.Context, bucket, key string, body io.Reader) (ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectStat, error)
	GetObjectRange(ctx context.Context, bucket, key, rangeHeader string) (io.ReadCloser, ObjectStat, int64, int64, error)
	HeadObject(ctx context.Context, bucket, key string) (ObjectStat, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	DeleteObjects(ctx context.Context, bucket string, keys []string) []error
	ListObjects(ctx context.Context, bucket string, opts ListObjectsOptions) (ListObjectsResult, error)

	CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error)
	UploadPart(ctx context.Context, bucket, uploadID string, partNumber int, body io.Reader) (MultipartPartInfo, error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (ObjectInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, uploadID string) error
	ListMultipartUploads(ctx context.Context, bucket string) ([]MultipartUpload, error)
	ListParts(ctx context.Context, bucket, uploadID string, opts ListPartsOptions) (ListPartsResult, error)
}
