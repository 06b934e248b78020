package storage

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hardyscc/storage-svc/internal/chunked"
	"github.com/hardyscc/storage-svc/internal/s3"
)

const (
	defaultMaxObjectSize = int64(25 * 1024 * 1024 * 1024)
	defaultMaxKeys       = 1000

	// multipartDirName holds in-progress uploads inside a bucket and is
	// invisible to object listings.
	multipartDirName = ".multipart-uploads"
)

type FSBackend struct {
	rootDir       string
	maxObjectSize int64
	mutationMu    sync.RWMutex
}

func NewFSBackend(rootDir string, maxObjectSize int64) (*FSBackend, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if maxObjectSize <= 0 {
		maxObjectSize = defaultMaxObjectSize
	}

	cleanRoot := filepath.Clean(rootDir)
	if err := os.MkdirAll(cleanRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FSBackend{rootDir: cleanRoot, maxObjectSize: maxObjectSize}, nil
}

func (b *FSBackend) CreateBucket(ctx context.Context, bucket string) error {
	if err := ensureContext(ctx); err != nil {
		return err
	}
	if !s3.IsValidBucketName(bucket) {
		return ErrInvalidBucketName
	}
	b.mutationMu.Lock()
	defer b.mutationMu.Unlock()
	bucketDir := b.bucketDir(bucket)
	if _, err := os.Stat(bucketDir); err == nil {
		return ErrBucketExists
	}
	if err := os.MkdirAll(bucketDir, 0o755); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}
	return nil
}

func (b *FSBackend) DeleteBucket(ctx context.Context, bucket string) error {
	if err := ensureContext(ctx); err != nil {
		return err
	}
	if err := b.HeadBucket(ctx, bucket); err != nil {
		return err
	}
	b.mutationMu.Lock()
	defer b.mutationMu.Unlock()

	bucketDir := b.bucketDir(bucket)
	pruneEmptyDirs(bucketDir)

	entries, err := os.ReadDir(bucketDir)
	if err != nil {
		return fmt.Errorf("read bucket dir: %w", err)
	}
	for _, entry := range entries {
		// A multipart dir that survived pruning still holds staged parts.
		return fmt.Errorf("%w: %s remains", ErrBucketNotEmpty, entry.Name())
	}

	if err := os.Remove(bucketDir); err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}
	return nil
}

func (b *FSBackend) HeadBucket(ctx context.Context, bucket string) error {
	if err := ensureContext(ctx); err != nil {
		return err
	}
	if !s3.IsValidBucketName(bucket) {
		return ErrInvalidBucketName
	}
	info, err := os.Stat(b.bucketDir(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoSuchBucket
		}
		return fmt.Errorf("stat bucket: %w", err)
	}
	if !info.IsDir() {
		return ErrNoSuchBucket
	}
	return nil
}

func (b *FSBackend) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.rootDir)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	buckets := make([]BucketInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		buckets = append(buckets, BucketInfo{Name: entry.Name(), CreationDate: info.ModTime().UTC()})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

func (b *FSBackend) PutObject(ctx context.Context, bucket, key string, body io.Reader) (ObjectInfo, error) {
	if err := ensureContext(ctx); err != nil {
		return ObjectInfo{}, err
	}
	if err := b.HeadBucket(ctx, bucket); err != nil {
		return ObjectInfo{}, err
	}
	if err := validateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	b.mutationMu.Lock()
	defer b.mutationMu.Unlock()

	objectPath := b.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("ensure object dir: %w", err)
	}

	written, etag, err := b.writeFileStreamed(objectPath, decodePayload(body))
	if err != nil {
		return ObjectInfo{}, err
	}

	return ObjectInfo{
		Bucket:   bucket,
		Key:      key,
		Size:     written,
		ETag:     etag,
		Modified: time.Now().UTC(),
	}, nil
}

// writeFileStreamed copies body into a temp file next to dst, hashing
// as it goes, and renames into place so readers never observe a
// partial object. Returns the byte count and the lowercase hex MD5.
func (b *FSBackend) writeFileStreamed(dst string, body io.Reader) (int64, string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "obj-*.tmp")
	if err != nil {
		return 0, "", fmt.Errorf("create temp payload: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := md5.New() //nolint:gosec // S3 ETag compatibility.
	limited := io.LimitReader(body, b.maxObjectSize+1)
	written, err := io.Copy(io.MultiWriter(tmp, h), limited)
	if err != nil {
		_ = tmp.Close()
		return 0, "", fmt.Errorf("write payload: %w", err)
	}
	if written > b.maxObjectSize {
		_ = tmp.Close()
		return 0, "", ErrEntityTooLarge
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, "", fmt.Errorf("sync temp payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("close temp payload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, "", fmt.Errorf("commit payload: %w", err)
	}
	return written, hex.EncodeToString(h.Sum(nil)), nil
}

// decodePayload unwraps AWS streaming-chunk framing when the body
// carries it; everything else passes through untouched.
func decodePayload(body io.Reader) io.Reader {
	br := bufio.NewReader(body)
	if chunked.Detect(br) {
		return chunked.NewReader(br)
	}
	return br
}

func (b *FSBackend) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectStat, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, ObjectStat{}, err
	}
	b.mutationMu.RLock()
	defer b.mutationMu.RUnlock()

	stat, err := b.statObject(ctx, bucket, key)
	if err != nil {
		return nil, ObjectStat{}, err
	}
	file, err := os.Open(b.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectStat{}, ErrNoSuchKey
		}
		return nil, ObjectStat{}, fmt.Errorf("open payload: %w", err)
	}
	return file, stat, nil
}

func (b *FSBackend) GetObjectRange(ctx context.Context, bucket, key, rangeHeader string) (io.ReadCloser, ObjectStat, int64, int64, error) {
	file, stat, err := b.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, ObjectStat{}, 0, 0, err
	}

	start, end, err := ParseRange(rangeHeader, stat.ContentLength)
	if err != nil {
		_ = file.Close()
		return nil, ObjectStat{}, 0, 0, err
	}

	osFile, ok := file.(*os.File)
	if !ok {
		_ = file.Close()
		return nil, ObjectStat{}, 0, 0, fmt.Errorf("unexpected reader type")
	}
	if _, err := osFile.Seek(start, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, ObjectStat{}, 0, 0, fmt.Errorf("seek payload: %w", err)
	}

	length := end - start + 1
	return &rangeReadCloser{Reader: io.LimitReader(osFile, length), closer: osFile}, stat, start, end, nil
}

func (b *FSBackend) HeadObject(ctx context.Context, bucket, key string) (ObjectStat, error) {
	if err := ensureContext(ctx); err != nil {
		return ObjectStat{}, err
	}
	b.mutationMu.RLock()
	defer b.mutationMu.RUnlock()
	return b.statObject(ctx, bucket, key)
}

func (b *FSBackend) statObject(ctx context.Context, bucket, key string) (ObjectStat, error) {
	if err := b.HeadBucket(ctx, bucket); err != nil {
		return ObjectStat{}, err
	}
	if err := validateKey(key); err != nil {
		return ObjectStat{}, err
	}
	info, err := os.Stat(b.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectStat{}, ErrNoSuchKey
		}
		return ObjectStat{}, fmt.Errorf("stat object: %w", err)
	}
	if info.IsDir() {
		return ObjectStat{}, ErrNoSuchKey
	}
	return ObjectStat{
		ContentType:   DetectContentType(key),
		ContentLength: info.Size(),
		LastModified:  info.ModTime().UTC(),
	}, nil
}

func (b *FSBackend) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ensureContext(ctx); err != nil {
		return err
	}
	if err := b.HeadBucket(ctx, bucket); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	b.mutationMu.Lock()
	defer b.mutationMu.Unlock()
	return b.deleteObjectLocked(bucket, key)
}

func (b *FSBackend) deleteObjectLocked(bucket, key string) error {
	objectPath := b.objectPath(bucket, key)
	if err := os.Remove(objectPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}

	// Remove directories the delete emptied, stopping at the bucket
	// root so prefixes do not linger as empty folders.
	bucketDir := b.bucketDir(bucket)
	for dir := filepath.Dir(objectPath); dir != bucketDir && strings.HasPrefix(dir, bucketDir); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// DeleteObjects removes keys one by one. A missing key counts as
// deleted, matching the S3 bulk-delete contract. The returned slice is
// positionally aligned with keys; nil entries succeeded.
func (b *FSBackend) DeleteObjects(ctx context.Context, bucket string, keys []string) []error {
	results := make([]error, len(keys))
	if err := ensureContext(ctx); err != nil {
		for i := range results {
			results[i] = err
		}
		return results
	}
	if err := b.HeadBucket(ctx, bucket); err != nil {
		for i := range results {
			results[i] = err
		}
		return results
	}

	b.mutationMu.Lock()
	defer b.mutationMu.Unlock()
	for i, key := range keys {
		if err := validateKey(key); err != nil {
			results[i] = err
			continue
		}
		results[i] = b.deleteObjectLocked(bucket, key)
	}
	return results
}

func (b *FSBackend) ListObjects(ctx context.Context, bucket string, opts ListObjectsOptions) (ListObjectsResult, error) {
	if err := ensureContext(ctx); err != nil {
		return ListObjectsResult{}, err
	}
	if err := b.HeadBucket(ctx, bucket); err != nil {
		return ListObjectsResult{}, err
	}
	b.mutationMu.RLock()
	defer b.mutationMu.RUnlock()

	bucketDir := b.bucketDir(bucket)
	var objects []ObjectInfo
	err := filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if d.Name() == multipartDirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(bucketDir, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			if os.IsNotExist(infoErr) {
				return nil
			}
			return infoErr
		}
		objects = append(objects, ObjectInfo{
			Bucket:   bucket,
			Key:      key,
			Size:     info.Size(),
			ETag:     listingETag(key, info.Size(), info.ModTime()),
			Modified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return ListObjectsResult{}, fmt.Errorf("walk bucket: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	result := ListObjectsResult{Objects: objects}
	if len(objects) > maxKeys {
		result.Objects = objects[:maxKeys]
		result.IsTruncated = true
	}
	return result, nil
}

// listingETag is a cheap stand-in for listings: objects at rest carry
// no persisted digest, and hashing every payload per listing would be
// prohibitive.
func listingETag(key string, size int64, modified time.Time) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s/%d/%s", key, size, modified.UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(h.Sum(nil))
}

// validateKey rejects keys that would escape the bucket directory or
// collide with the multipart staging area.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return ErrInvalidKey
		}
	}
	if key == multipartDirName || strings.HasPrefix(key, multipartDirName+"/") {
		return ErrInvalidKey
	}
	return nil
}

func (b *FSBackend) bucketDir(bucket string) string {
	return filepath.Join(b.rootDir, bucket)
}

func (b *FSBackend) objectPath(bucket, key string) string {
	return filepath.Join(b.bucketDir(bucket), filepath.FromSlash(key))
}

// pruneEmptyDirs removes empty directories bottom-up under dir,
// leaving dir itself in place.
func pruneEmptyDirs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		pruneEmptyDirs(sub)
		_ = os.Remove(sub)
	}
}

func ensureContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

type rangeReadCloser struct {
	io.Reader
	closer io.Closer
}

func (r *rangeReadCloser) Close() error {
	return r.closer.Close()
}
