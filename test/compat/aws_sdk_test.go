package compat

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAWSClient(t *testing.T, endpoint string) *s3.Client {
	t.Helper()
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(compatAccessKey, compatSecretKey, "")),
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
		awsconfig.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired),
	)
	require.NoError(t, err)
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}

func TestAWSSDKBucketAndObjectLifecycle(t *testing.T) {
	t.Parallel()
	srv := newCompatServer(t)
	client := newAWSClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("sdk-bucket")})
	require.NoError(t, err, "CreateBucket via AWS SDK")

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String("sdk-bucket")})
	require.NoError(t, err, "HeadBucket via AWS SDK")

	buckets, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	require.NoError(t, err, "ListBuckets via AWS SDK")
	require.Len(t, buckets.Buckets, 1)
	assert.Equal(t, "sdk-bucket", aws.ToString(buckets.Buckets[0].Name))

	payload := strings.Repeat("sdk-payload ", 1024)
	putOut, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String("sdk-bucket"),
		Key:    aws.String("reports/2026/q1.txt"),
		Body:   strings.NewReader(payload),
	})
	require.NoError(t, err, "PutObject via AWS SDK")
	assert.NotEmpty(t, aws.ToString(putOut.ETag))

	getOut, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("sdk-bucket"),
		Key:    aws.String("reports/2026/q1.txt"),
	})
	require.NoError(t, err, "GetObject via AWS SDK")
	body, err := io.ReadAll(getOut.Body)
	require.NoError(t, err)
	require.NoError(t, getOut.Body.Close())
	assert.Equal(t, payload, string(body))

	rangeOut, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("sdk-bucket"),
		Key:    aws.String("reports/2026/q1.txt"),
		Range:  aws.String("bytes=0-10"),
	})
	require.NoError(t, err, "ranged GetObject via AWS SDK")
	rangeBody, err := io.ReadAll(rangeOut.Body)
	require.NoError(t, err)
	require.NoError(t, rangeOut.Body.Close())
	assert.Equal(t, payload[:11], string(rangeBody))

	list, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String("sdk-bucket"),
		Prefix: aws.String("reports/"),
	})
	require.NoError(t, err, "ListObjectsV2 via AWS SDK")
	require.Len(t, list.Contents, 1)
	assert.Equal(t, "reports/2026/q1.txt", aws.ToString(list.Contents[0].Key))

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String("sdk-bucket"),
		Key:    aws.String("reports/2026/q1.txt"),
	})
	require.NoError(t, err, "DeleteObject via AWS SDK")

	_, err = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String("sdk-bucket")})
	require.NoError(t, err, "DeleteBucket via AWS SDK")
}

func TestAWSSDKBulkDelete(t *testing.T) {
	t.Parallel()
	srv := newCompatServer(t)
	client := newAWSClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("bulk-bucket")})
	require.NoError(t, err)

	for _, key := range []string{"a.txt", "b.txt"} {
		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String("bulk-bucket"),
			Key:    aws.String(key),
			Body:   bytes.NewReader([]byte(key)),
		})
		require.NoError(t, err)
	}

	out, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String("bulk-bucket"),
		Delete: &types.Delete{
			Objects: []types.ObjectIdentifier{
				{Key: aws.String("a.txt")},
				{Key: aws.String("b.txt")},
				{Key: aws.String("never-existed.txt")},
			},
		},
	})
	require.NoError(t, err, "DeleteObjects via AWS SDK")
	assert.Len(t, out.Deleted, 3, "missing keys count as deleted")
	assert.Empty(t, out.Errors)
}

func TestAWSSDKMultipartUpload(t *testing.T) {
	t.Parallel()
	srv := newCompatServer(t)
	client := newAWSClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("mpu-bucket")})
	require.NoError(t, err)

	create, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String("mpu-bucket"),
		Key:    aws.String("assembled.bin"),
	})
	require.NoError(t, err, "CreateMultipartUpload via AWS SDK")
	uploadID := aws.ToString(create.UploadId)
	require.NotEmpty(t, uploadID)

	var completed []types.CompletedPart
	for i, chunk := range []string{"first-part-", "second-part"} {
		partOut, err := client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String("mpu-bucket"),
			Key:        aws.String("assembled.bin"),
			UploadId:   create.UploadId,
			PartNumber: aws.Int32(int32(i + 1)),
			Body:       strings.NewReader(chunk),
		})
		require.NoError(t, err, "UploadPart via AWS SDK")
		completed = append(completed, types.CompletedPart{
			ETag:       partOut.ETag,
			PartNumber: aws.Int32(int32(i + 1)),
		})
	}

	parts, err := client.ListParts(ctx, &s3.ListPartsInput{
		Bucket:   aws.String("mpu-bucket"),
		Key:      aws.String("assembled.bin"),
		UploadId: create.UploadId,
	})
	require.NoError(t, err, "ListParts via AWS SDK")
	require.Len(t, parts.Parts, 2)

	_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String("mpu-bucket"),
		Key:             aws.String("assembled.bin"),
		UploadId:        create.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	require.NoError(t, err, "CompleteMultipartUpload via AWS SDK")

	getOut, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("mpu-bucket"),
		Key:    aws.String("assembled.bin"),
	})
	require.NoError(t, err)
	body, err := io.ReadAll(getOut.Body)
	require.NoError(t, err)
	require.NoError(t, getOut.Body.Close())
	assert.Equal(t, "first-part-second-part", string(body))
}

func TestAWSSDKErrorCodes(t *testing.T) {
	t.Parallel()
	srv := newCompatServer(t)
	client := newAWSClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("ghost-bucket"),
		Key:    aws.String("ghost.txt"),
	})
	require.Error(t, err)
	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NoSuchBucket", apiErr.ErrorCode())

	badClient := newAWSClientWithCreds(t, srv.URL, compatAccessKey, "wrong-secret")
	_, err = badClient.ListBuckets(ctx, &s3.ListBucketsInput{})
	require.Error(t, err)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "SignatureDoesNotMatch", apiErr.ErrorCode())
}

func newAWSClientWithCreds(t *testing.T, endpoint, accessKey, secret string) *s3.Client {
	t.Helper()
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secret, "")),
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
		awsconfig.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired),
	)
	require.NoError(t, err)
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}
