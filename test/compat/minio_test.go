package compat

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMinioClient(t *testing.T, rawURL string) *minio.Client {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	client, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(compatAccessKey, compatSecretKey, ""),
		Secure:       u.Scheme == "https",
		BucketLookup: minio.BucketLookupPath,
		// Pinning the region keeps the client from probing bucket
		// location, which this API does not serve.
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return client
}

func newMinioCore(t *testing.T, rawURL string) *minio.Core {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	core, err := minio.NewCore(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(compatAccessKey, compatSecretKey, ""),
		Secure:       u.Scheme == "https",
		BucketLookup: minio.BucketLookupPath,
		Region:       "us-east-1",
	})
	require.NoError(t, err)
	return core
}

// Over plain HTTP minio-go signs uploads with the streaming chunked
// encoding, so this round trip exercises the chunk decoder end to end.
func TestMinioObjectRoundTrip(t *testing.T) {
	t.Parallel()
	srv := newCompatServer(t)
	client := newMinioClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.MakeBucket(ctx, "minio-bucket", minio.MakeBucketOptions{Region: "us-east-1"}))

	exists, err := client.BucketExists(ctx, "minio-bucket")
	require.NoError(t, err)
	require.True(t, exists)

	data := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	info, err := client.PutObject(ctx, "minio-bucket", "blob.bin", bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err, "PutObject via MinIO client")
	assert.Equal(t, int64(len(data)), info.Size)
	assert.NotEmpty(t, info.ETag)

	obj, err := client.GetObject(ctx, "minio-bucket", "blob.bin", minio.GetObjectOptions{})
	require.NoError(t, err)
	got, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())
	assert.Equal(t, data, got)

	stat, err := client.StatObject(ctx, "minio-bucket", "blob.bin", minio.StatObjectOptions{})
	require.NoError(t, err, "StatObject via MinIO client")
	assert.Equal(t, int64(len(data)), stat.Size)

	require.NoError(t, client.RemoveObject(ctx, "minio-bucket", "blob.bin", minio.RemoveObjectOptions{}))
	require.NoError(t, client.RemoveBucket(ctx, "minio-bucket"))
}

func TestMinioList(t *testing.T) {
	t.Parallel()
	srv := newCompatServer(t)
	client := newMinioClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.MakeBucket(ctx, "minio-list", minio.MakeBucketOptions{Region: "us-east-1"}))
	for _, key := range []string{"logs/app.log", "logs/db.log", "data/raw.bin"} {
		_, err := client.PutObject(ctx, "minio-list", key, bytes.NewReader([]byte(key)), int64(len(key)), minio.PutObjectOptions{})
		require.NoError(t, err)
	}

	var keys []string
	for obj := range client.ListObjects(ctx, "minio-list", minio.ListObjectsOptions{Prefix: "logs/", Recursive: true}) {
		require.NoError(t, obj.Err)
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"logs/app.log", "logs/db.log"}, keys)
}

func TestMinioMultipartViaCore(t *testing.T) {
	t.Parallel()
	srv := newCompatServer(t)
	client := newMinioClient(t, srv.URL)
	core := newMinioCore(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.MakeBucket(ctx, "minio-mpu", minio.MakeBucketOptions{Region: "us-east-1"}))

	uploadID, err := core.NewMultipartUpload(ctx, "minio-mpu", "big.bin", minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err, "NewMultipartUpload via MinIO core")

	var parts []minio.CompletePart
	for i, chunk := range [][]byte{bytes.Repeat([]byte("a"), 1024), bytes.Repeat([]byte("b"), 512)} {
		part, err := core.PutObjectPart(ctx, "minio-mpu", "big.bin", uploadID, i+1,
			bytes.NewReader(chunk), int64(len(chunk)), minio.PutObjectPartOptions{})
		require.NoError(t, err, "PutObjectPart via MinIO core")
		parts = append(parts, minio.CompletePart{PartNumber: part.PartNumber, ETag: part.ETag})
	}

	listed, err := core.ListObjectParts(ctx, "minio-mpu", "big.bin", uploadID, 0, 1000)
	require.NoError(t, err, "ListObjectParts via MinIO core")
	require.Len(t, listed.ObjectParts, 2)

	_, err = core.CompleteMultipartUpload(ctx, "minio-mpu", "big.bin", uploadID, parts, minio.PutObjectOptions{})
	require.NoError(t, err, "CompleteMultipartUpload via MinIO core")

	obj, err := client.GetObject(ctx, "minio-mpu", "big.bin", minio.GetObjectOptions{})
	require.NoError(t, err)
	got, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())
	assert.Len(t, got, 1536)
}

func TestMinioAbortMultipart(t *testing.T) {
	t.Parallel()
	srv := newCompatServer(t)
	client := newMinioClient(t, srv.URL)
	core := newMinioCore(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.MakeBucket(ctx, "minio-abort", minio.MakeBucketOptions{Region: "us-east-1"}))

	uploadID, err := core.NewMultipartUpload(ctx, "minio-abort", "gone.bin", minio.PutObjectOptions{})
	require.NoError(t, err)

	_, err = core.PutObjectPart(ctx, "minio-abort", "gone.bin", uploadID, 1,
		bytes.NewReader([]byte("payload")), 7, minio.PutObjectPartOptions{})
	require.NoError(t, err)

	require.NoError(t, core.AbortMultipartUpload(ctx, "minio-abort", "gone.bin", uploadID))

	_, err = core.ListObjectParts(ctx, "minio-abort", "gone.bin", uploadID, 0, 1000)
	require.Error(t, err, "aborted upload must be gone")
}
