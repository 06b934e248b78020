package storage

import "errors"

var (
	ErrNoSuchBucket      = errors.New("bucket does not exist")
	ErrBucketExists      = errors.New("bucket already exists")
	ErrBucketNotEmpty    = errors.New("bucket is not empty")
	ErrInvalidBucketName = errors.New("invalid bucket name")
	ErrNoSuchKey         = errors.New("object does not exist")
	ErrInvalidKey        = errors.New("invalid object key")
	ErrEntityTooLarge    = errors.New("object exceeds maximum allowed size")
	ErrInvalidRange      = errors.New("range not satisfiable")
	ErrNoSuchUpload      = errors.New("multipart upload does not exist")
	ErrInvalidPart       = errors.New("part could not be found")
	ErrInvalidPartOrder  = errors.New("part list not in ascending order")
	ErrInvalidRequest    = errors.New("invalid request")
)
