package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxMultipartPartNumber = 10000

var uploadIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// uploadManifest records a multipart upload from initiation until it
// is completed or aborted.
type uploadManifest struct {
	UploadID  string    `json:"upload_id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

type partMeta struct {
	PartNumber   int       `json:"part_number"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

func (b *FSBackend) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	if err := b.HeadBucket(ctx, bucket); err != nil {
		return "", err
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	uploadID := uuid.NewString()
	uploadDir := b.uploadDir(bucket, uploadID)
	if err := os.MkdirAll(uploadDir, 0o700); err != nil {
		return "", fmt.Errorf("create multipart upload dir: %w", err)
	}

	manifest := uploadManifest{UploadID: uploadID, Key: key, CreatedAt: time.Now().UTC()}
	if err := b.writeManifest(bucket, uploadID, manifest); err != nil {
		_ = os.RemoveAll(uploadDir)
		return "", err
	}
	return uploadID, nil
}

func (b *FSBackend) UploadPart(ctx context.Context, bucket, uploadID string, partNumber int, body io.Reader) (MultipartPartInfo, error) {
	if err := ensureContext(ctx); err != nil {
		return MultipartPartInfo{}, err
	}
	if partNumber <= 0 || partNumber > maxMultipartPartNumber {
		return MultipartPartInfo{}, ErrInvalidPart
	}
	if _, err := b.readManifest(ctx, bucket, uploadID); err != nil {
		return MultipartPartInfo{}, err
	}

	tmp, err := os.CreateTemp(b.uploadDir(bucket, uploadID), "part-*.tmp")
	if err != nil {
		return MultipartPartInfo{}, fmt.Errorf("create multipart temp part: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := md5.New() //nolint:gosec // S3 part ETags are MD5.
	limited := io.LimitReader(decodePayload(body), b.maxObjectSize+1)
	written, err := io.Copy(io.MultiWriter(tmp, h), limited)
	if err != nil {
		_ = tmp.Close()
		return MultipartPartInfo{}, fmt.Errorf("write multipart part: %w", err)
	}
	if written > b.maxObjectSize {
		_ = tmp.Close()
		return MultipartPartInfo{}, ErrEntityTooLarge
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return MultipartPartInfo{}, fmt.Errorf("sync multipart part: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return MultipartPartInfo{}, fmt.Errorf("close multipart part: %w", err)
	}

	now := time.Now().UTC()
	etag := hex.EncodeToString(h.Sum(nil))
	meta := partMeta{PartNumber: partNumber, Size: written, ETag: etag, LastModified: now}
	if err := b.writePartMeta(bucket, uploadID, meta); err != nil {
		return MultipartPartInfo{}, err
	}

	// Re-uploading a part number replaces the previous payload; the
	// last completed write wins.
	if err := os.Rename(tmp.Name(), b.partPath(bucket, uploadID, partNumber)); err != nil {
		return MultipartPartInfo{}, fmt.Errorf("commit multipart part: %w", err)
	}

	return MultipartPartInfo{PartNumber: partNumber, Size: written, ETag: etag, LastModified: now}, nil
}

func (b *FSBackend) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (ObjectInfo, error) {
	if err := ensureContext(ctx); err != nil {
		return ObjectInfo{}, err
	}
	manifest, err := b.readManifest(ctx, bucket, uploadID)
	if err != nil {
		return ObjectInfo{}, err
	}
	if manifest.Key != key {
		return ObjectInfo{}, ErrNoSuchUpload
	}

	staged, err := b.listPartMetas(ctx, bucket, uploadID)
	if err != nil {
		return ObjectInfo{}, err
	}
	if len(staged) == 0 {
		return ObjectInfo{}, ErrNoSuchUpload
	}

	selected, err := selectCompletedParts(staged, parts)
	if err != nil {
		return ObjectInfo{}, err
	}

	readers := make([]io.Reader, 0, len(selected))
	closers := make([]io.Closer, 0, len(selected))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, part := range selected {
		if err := ctx.Err(); err != nil {
			return ObjectInfo{}, err
		}
		f, openErr := os.Open(b.partPath(bucket, uploadID, part.PartNumber))
		if openErr != nil {
			return ObjectInfo{}, ErrInvalidPart
		}
		readers = append(readers, f)
		closers = append(closers, f)
	}

	b.mutationMu.Lock()
	defer b.mutationMu.Unlock()

	objectPath := b.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("ensure object dir: %w", err)
	}
	// Parts were already de-chunked on upload; assemble them as-is and
	// report the MD5 of the whole assembled object.
	written, etag, err := b.writeFileStreamed(objectPath, io.MultiReader(readers...))
	if err != nil {
		return ObjectInfo{}, err
	}

	if err := os.RemoveAll(b.uploadDir(bucket, uploadID)); err != nil {
		return ObjectInfo{}, fmt.Errorf("cleanup multipart upload: %w", err)
	}
	b.removeEmptyUploadRoot(bucket)

	return ObjectInfo{
		Bucket:   bucket,
		Key:      key,
		Size:     written,
		ETag:     etag,
		Modified: time.Now().UTC(),
	}, nil
}

// AbortMultipartUpload discards staged parts. Aborting an unknown or
// already-finished upload succeeds.
func (b *FSBackend) AbortMultipartUpload(ctx context.Context, bucket, uploadID string) error {
	if err := ensureContext(ctx); err != nil {
		return err
	}
	if _, err := b.readManifest(ctx, bucket, uploadID); err != nil {
		if errors.Is(err, ErrNoSuchUpload) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(b.uploadDir(bucket, uploadID)); err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	b.removeEmptyUploadRoot(bucket)
	return nil
}

func (b *FSBackend) ListMultipartUploads(ctx context.Context, bucket string) ([]MultipartUpload, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, err
	}
	if err := b.HeadBucket(ctx, bucket); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.uploadRoot(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read multipart root: %w", err)
	}

	uploads := make([]MultipartUpload, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		manifest, readErr := b.readManifest(ctx, bucket, entry.Name())
		if readErr != nil {
			continue
		}
		uploads = append(uploads, MultipartUpload{
			Bucket:    bucket,
			Key:       manifest.Key,
			UploadID:  manifest.UploadID,
			Initiated: manifest.CreatedAt,
		})
	}
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key == uploads[j].Key {
			return uploads[i].UploadID < uploads[j].UploadID
		}
		return uploads[i].Key < uploads[j].Key
	})
	return uploads, nil
}

func (b *FSBackend) ListParts(ctx context.Context, bucket, uploadID string, opts ListPartsOptions) (ListPartsResult, error) {
	if err := ensureContext(ctx); err != nil {
		return ListPartsResult{}, err
	}
	if _, err := b.readManifest(ctx, bucket, uploadID); err != nil {
		return ListPartsResult{}, err
	}

	metas, err := b.listPartMetas(ctx, bucket, uploadID)
	if err != nil {
		return ListPartsResult{}, err
	}
	maxParts := opts.MaxParts
	if maxParts <= 0 || maxParts > 1000 {
		maxParts = 1000
	}

	result := ListPartsResult{}
	for _, m := range metas {
		if m.PartNumber <= opts.PartNumberMarker {
			continue
		}
		if len(result.Parts) >= maxParts {
			result.IsTruncated = true
			result.NextPartNumberMarker = result.Parts[len(result.Parts)-1].PartNumber
			break
		}
		result.Parts = append(result.Parts, MultipartPartInfo(m))
	}
	return result, nil
}

func (b *FSBackend) uploadRoot(bucket string) string {
	return filepath.Join(b.bucketDir(bucket), multipartDirName)
}

func (b *FSBackend) uploadDir(bucket, uploadID string) string {
	return filepath.Join(b.uploadRoot(bucket), uploadID)
}

func (b *FSBackend) manifestPath(bucket, uploadID string) string {
	return filepath.Join(b.uploadDir(bucket, uploadID), "manifest.json")
}

func (b *FSBackend) partPath(bucket, uploadID string, partNumber int) string {
	return filepath.Join(b.uploadDir(bucket, uploadID), fmt.Sprintf("part-%05d.bin", partNumber))
}

func (b *FSBackend) partMetaPath(bucket, uploadID string, partNumber int) string {
	return filepath.Join(b.uploadDir(bucket, uploadID), fmt.Sprintf("part-%05d.json", partNumber))
}

// removeEmptyUploadRoot drops the staging root once no uploads remain
// so it never blocks bucket deletion.
func (b *FSBackend) removeEmptyUploadRoot(bucket string) {
	_ = os.Remove(b.uploadRoot(bucket))
}

func (b *FSBackend) readManifest(ctx context.Context, bucket, uploadID string) (uploadManifest, error) {
	if err := ensureContext(ctx); err != nil {
		return uploadManifest{}, err
	}
	if err := validateUploadID(uploadID); err != nil {
		return uploadManifest{}, err
	}
	if err := b.HeadBucket(ctx, bucket); err != nil {
		return uploadManifest{}, err
	}
	raw, err := os.ReadFile(b.manifestPath(bucket, uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return uploadManifest{}, ErrNoSuchUpload
		}
		return uploadManifest{}, fmt.Errorf("read multipart manifest: %w", err)
	}
	var manifest uploadManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return uploadManifest{}, fmt.Errorf("decode multipart manifest: %w", err)
	}
	return manifest, nil
}

func (b *FSBackend) writeManifest(bucket, uploadID string, manifest uploadManifest) error {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal multipart manifest: %w", err)
	}
	if err := os.WriteFile(b.manifestPath(bucket, uploadID), raw, 0o600); err != nil {
		return fmt.Errorf("write multipart manifest: %w", err)
	}
	return nil
}

func (b *FSBackend) writePartMeta(bucket, uploadID string, meta partMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal multipart part meta: %w", err)
	}
	if err := os.WriteFile(b.partMetaPath(bucket, uploadID, meta.PartNumber), raw, 0o600); err != nil {
		return fmt.Errorf("write multipart part meta: %w", err)
	}
	return nil
}

func (b *FSBackend) listPartMetas(ctx context.Context, bucket, uploadID string) ([]partMeta, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.uploadDir(bucket, uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSuchUpload
		}
		return nil, fmt.Errorf("read multipart upload dir: %w", err)
	}
	parts := make([]partMeta, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "part-") || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "part-"), ".json")
		num, convErr := strconv.Atoi(numStr)
		if convErr != nil || num <= 0 || num > maxMultipartPartNumber {
			continue
		}
		raw, readErr := os.ReadFile(b.partMetaPath(bucket, uploadID, num))
		if readErr != nil {
			return nil, fmt.Errorf("read multipart part meta: %w", readErr)
		}
		var meta partMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode multipart part meta: %w", err)
		}
		parts = append(parts, meta)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

// selectCompletedParts resolves the client's completion request
// against the staged parts. An empty request takes every staged part
// in ascending order; an explicit list must be strictly ascending,
// reference staged parts only, and match their ETags when given.
func selectCompletedParts(available []partMeta, requested []CompletedPart) ([]partMeta, error) {
	if len(requested) == 0 {
		return available, nil
	}

	byPart := make(map[int]partMeta, len(available))
	for _, part := range available {
		byPart[part.PartNumber] = part
	}

	out := make([]partMeta, 0, len(requested))
	lastPartNumber := 0
	for _, req := range requested {
		if req.PartNumber <= 0 || req.PartNumber > maxMultipartPartNumber {
			return nil, ErrInvalidPart
		}
		if req.PartNumber <= lastPartNumber {
			return nil, ErrInvalidPartOrder
		}
		lastPartNumber = req.PartNumber

		part, ok := byPart[req.PartNumber]
		if !ok {
			return nil, ErrInvalidPart
		}
		if want := strings.Trim(strings.TrimSpace(req.ETag), "\""); want != "" && want != part.ETag {
			return nil, ErrInvalidPart
		}
		out = append(out, part)
	}
	return out, nil
}

func validateUploadID(uploadID string) error {
	if strings.TrimSpace(uploadID) == "" {
		return ErrInvalidRequest
	}
	if !uploadIDPattern.MatchString(uploadID) {
		return ErrNoSuchUpload
	}
	return nil
}
