// Package api exposes the storage backend over the S3 HTTP protocol.
// Every S3 request is authenticated before any storage I/O happens;
// only the health and metrics endpoints are exempt.
package api

import (
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hardyscc/storage-svc/internal/auth"
	"github.com/hardyscc/storage-svc/internal/obs/metrics"
	"github.com/hardyscc/storage-svc/internal/s3"
	"github.com/hardyscc/storage-svc/internal/s3err"
	"github.com/hardyscc/storage-svc/internal/storage"
)

type Service struct {
	Backend      storage.Backend
	Auth         *auth.Authenticator
	MaxBodyBytes int64
	PathLive     string
	PathReady    string
	MetricsPath  string
	ReadyCheck   func() error
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Now          func() time.Time
}

func (s *Service) Handler() http.Handler {
	nowFn := s.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pathLive := s.PathLive
	if pathLive == "" {
		pathLive = "/healthz"
	}
	pathReady := s.PathReady
	if pathReady == "" {
		pathReady = "/readyz"
	}

	router := chi.NewRouter()
	if s.Metrics != nil {
		router.Use(s.Metrics.Middleware)
	}
	router.Get(pathLive, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get(pathReady, func(w http.ResponseWriter, r *http.Request) {
		if s.ReadyCheck != nil {
			if err := s.ReadyCheck(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil && s.MetricsPath != "" {
		router.Handle(s.MetricsPath, s.Metrics.Handler())
	}
	router.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		s.serveS3(w, r, logger, nowFn)
	})
	return router
}

func (s *Service) serveS3(w http.ResponseWriter, r *http.Request, logger *slog.Logger, nowFn func() time.Time) {
	start := nowFn()
	reqID := uuid.NewString()
	w.Header().Set("x-amz-request-id", reqID)
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	if s.MaxBodyBytes > 0 && r.Body != nil && r.Body != http.NoBody {
		r.Body = http.MaxBytesReader(sw, r.Body, s.MaxBodyBytes)
	}

	target, err := s3.ParseRequestTarget(r)
	if err != nil {
		apiErr := s3err.MapError(err)
		s3err.Write(sw, reqID, apiErr, r.URL.Path)
		s.logRequest(logger, r, sw.status, time.Since(start), reqID, "", target, "", apiErr.Code)
		return
	}

	op := s3.ResolveOperation(r.Method, target, s3.ParseDispatchQuery(r.URL.Query()), r.Header)
	if op == s3.OperationUnknown {
		s3err.Write(sw, reqID, s3err.MethodNotAllowed, resourceFromTarget(target))
		s.logRequest(logger, r, sw.status, time.Since(start), reqID, "", target, string(op), s3err.MethodNotAllowed.Code)
		return
	}

	result, err := s.Auth.Authenticate(r)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.ObserveAuthFailure()
		}
		apiErr := s3err.MapError(err)
		s3err.Write(sw, reqID, apiErr, resourceFromTarget(target))
		s.logRequest(logger, r, sw.status, time.Since(start), reqID, "", target, string(op), apiErr.Code)
		return
	}

	if s.Metrics != nil {
		s.Metrics.ObserveOperation(string(op))
	}

	errCode := ""
	if err := s.dispatch(sw, r, op, target); err != nil {
		apiErr := s3err.MapError(err)
		errCode = apiErr.Code
		s3err.Write(sw, reqID, apiErr, resourceFromTarget(target))
	}
	s.logRequest(logger, r, sw.status, time.Since(start), reqID, result.Principal.AccessKey, target, string(op), errCode)
}

func (s *Service) logRequest(logger *slog.Logger, r *http.Request, status int, latency time.Duration, reqID, principal string, target s3.RequestTarget, op, errorCode string) {
	logger.Info("request complete",
		"request_id", reqID,
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
		"path", r.URL.Path,
		"operation", op,
		"status_code", status,
		"latency_ms", latency.Milliseconds(),
		"principal", principal,
		"bucket", target.Bucket,
		"key", target.Key,
		"error_code", errorCode,
	)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func resourceFromTarget(target s3.RequestTarget) string {
	if target.Bucket == "" {
		return "*"
	}
	if target.Key == "" {
		return target.Bucket
	}
	return target.Bucket + "/" + target.Key
}

func (s *Service) dispatch(w http.ResponseWriter, r *http.Request, op s3.Operation, target s3.RequestTarget) error {
	switch op {
	case s3.OperationListBuckets:
		return s.handleListBuckets(w, r)
	case s3.OperationCreateBucket:
		return s.handleCreateBucket(w, r, target.Bucket)
	case s3.OperationDeleteBucket:
		return s.handleDeleteBucket(w, r, target.Bucket)
	case s3.OperationHeadBucket:
		return s.handleHeadBucket(w, r, target.Bucket)
	case s3.OperationListObjects:
		return s.handleListObjects(w, r, target.Bucket)
	case s3.OperationDeleteObjects:
		return s.handleDeleteObjects(w, r, target.Bucket)
	case s3.OperationPutObject:
		return s.handlePutObject(w, r, target)
	case s3.OperationGetObject:
		return s.handleGetObject(w, r, target)
	case s3.OperationHeadObject:
		return s.handleHeadObject(w, r, target)
	case s3.OperationDeleteObject:
		return s.handleDeleteObject(w, r, target)
	case s3.OperationCreateMultipartUpload:
		return s.handleCreateMultipartUpload(w, r, target)
	case s3.OperationUploadPart:
		return s.handleUploadPart(w, r, target)
	case s3.OperationCompleteMultipartUpload:
		return s.handleCompleteMultipartUpload(w, r, target)
	case s3.OperationAbortMultipartUpload:
		return s.handleAbortMultipartUpload(w, r, target)
	case s3.OperationListMultipartUploads:
		return s.handleListMultipartUploads(w, r, target.Bucket)
	case s3.OperationListParts:
		return s.handleListParts(w, r, target)
	default:
		return s3err.MethodNotAllowed
	}
}

func (s *Service) handleListBuckets(w http.ResponseWriter, r *http.Request) error {
	buckets, err := s.Backend.ListBuckets(r.Context())
	if err != nil {
		return err
	}
	result := listAllMyBucketsResult{
		XMLNS: s3XMLNS,
		Owner: owner{ID: "local", DisplayName: "local"},
	}
	for _, bucket := range buckets {
		result.Buckets = append(result.Buckets, listBucketElement{
			Name:         bucket.Name,
			CreationDate: formatS3XMLTime(bucket.CreationDate),
		})
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(result)
}

func (s *Service) handleCreateBucket(w http.ResponseWriter, r *http.Request, bucket string) error {
	if r.Body != nil && r.Body != http.NoBody {
		// The location constraint is accepted and ignored; all buckets
		// live on the local filesystem.
		decoder := xml.NewDecoder(r.Body)
		var cfg createBucketConfiguration
		if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
			if isRequestBodyTooLarge(err) {
				return storage.ErrEntityTooLarge
			}
			return storage.ErrInvalidRequest
		}
		if cfg.XMLName.Local != "" && cfg.XMLName.Local != "CreateBucketConfiguration" {
			return storage.ErrInvalidRequest
		}
	}
	if err := s.Backend.CreateBucket(r.Context(), bucket); err != nil {
		return err
	}
	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleDeleteBucket(w http.ResponseWriter, r *http.Request, bucket string) error {
	if err := s.Backend.DeleteBucket(r.Context(), bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Service) handleHeadBucket(w http.ResponseWriter, r *http.Request, bucket string) error {
	if err := s.Backend.HeadBucket(r.Context(), bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleListObjects(w http.ResponseWriter, r *http.Request, bucket string) error {
	q := r.URL.Query()
	listType, err := getSingleQueryValue(q, "list-type")
	if err != nil {
		return err
	}
	if listType != "" && listType != "2" {
		return storage.ErrInvalidRequest
	}
	prefix, err := getSingleQueryValue(q, "prefix")
	if err != nil {
		return err
	}
	maxKeys := 1000
	maxKeysValue, err := getSingleQueryValue(q, "max-keys")
	if err != nil {
		return err
	}
	if maxKeysValue != "" {
		parsed, parseErr := strconv.Atoi(maxKeysValue)
		if parseErr != nil || parsed < 0 {
			return storage.ErrInvalidRequest
		}
		maxKeys = parsed
	}
	if maxKeys > 1000 {
		maxKeys = 1000
	}

	// An explicit max-keys=0 asks for no contents; the backend treats a
	// zero cap as "use the default", so probe for a single key instead
	// to report truncation honestly.
	backendMax := maxKeys
	if backendMax == 0 {
		backendMax = 1
	}
	res, err := s.Backend.ListObjects(r.Context(), bucket, storage.ListObjectsOptions{
		Prefix:  prefix,
		MaxKeys: backendMax,
	})
	if err != nil {
		return err
	}
	if maxKeys == 0 {
		res.IsTruncated = len(res.Objects) > 0
		res.Objects = nil
	}

	result := listBucketResult{
		XMLNS:       s3XMLNS,
		Name:        bucket,
		Prefix:      prefix,
		KeyCount:    len(res.Objects),
		MaxKeys:     maxKeys,
		IsTruncated: res.IsTruncated,
	}
	for _, obj := range res.Objects {
		result.Contents = append(result.Contents, listObjectContents{
			Key:          obj.Key,
			LastModified: formatS3XMLTime(obj.Modified),
			ETag:         quoteETag(obj.ETag),
			Size:         obj.Size,
			StorageClass: "STANDARD",
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(result)
}

func (s *Service) handleDeleteObjects(w http.ResponseWriter, r *http.Request, bucket string) error {
	if r.Body == nil || r.Body == http.NoBody {
		return storage.ErrInvalidRequest
	}
	var req deleteObjectsRequest
	decoder := xml.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		if isRequestBodyTooLarge(err) {
			return storage.ErrEntityTooLarge
		}
		return s3err.MalformedXML
	}
	if len(req.Objects) == 0 {
		return s3err.MalformedXML
	}

	keys := make([]string, 0, len(req.Objects))
	for _, obj := range req.Objects {
		keys = append(keys, obj.Key)
	}

	outcomes := s.Backend.DeleteObjects(r.Context(), bucket, keys)
	result := deleteObjectsResult{XMLNS: s3XMLNS}
	for i, key := range keys {
		if outcomes[i] != nil {
			apiErr := s3err.MapError(outcomes[i])
			result.Errors = append(result.Errors, deleteErrorItemXML{
				Key:     key,
				Code:    apiErr.Code,
				Message: apiErr.Message,
			})
			continue
		}
		if !req.Quiet {
			result.Deleted = append(result.Deleted, deletedObjectXML{Key: key})
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(result)
}

func (s *Service) handlePutObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	obj, err := s.Backend.PutObject(r.Context(), target.Bucket, target.Key, r.Body)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", quoteETag(obj.ETag))
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleGetObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" {
		rc, stat, start, end, err := s.Backend.GetObjectRange(r.Context(), target.Bucket, target.Key, rangeHeader)
		if err != nil {
			return err
		}
		defer rc.Close()
		applyObjectHeaders(w.Header(), stat)
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.Header().Set("Content-Range", storage.ContentRange(start, end, stat.ContentLength))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.Copy(w, rc)
		return nil
	}

	rc, stat, err := s.Backend.GetObject(r.Context(), target.Bucket, target.Key)
	if err != nil {
		return err
	}
	defer rc.Close()
	applyObjectHeaders(w.Header(), stat)
	w.Header().Set("Content-Length", strconv.FormatInt(stat.ContentLength, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
	return nil
}

func (s *Service) handleHeadObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	stat, err := s.Backend.HeadObject(r.Context(), target.Bucket, target.Key)
	if err != nil {
		return err
	}
	applyObjectHeaders(w.Header(), stat)
	w.Header().Set("Content-Length", strconv.FormatInt(stat.ContentLength, 10))
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleDeleteObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.Backend.DeleteObject(r.Context(), target.Bucket, target.Key); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Service) handleCreateMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	uploadID, err := s.Backend.CreateMultipartUpload(r.Context(), target.Bucket, target.Key)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(initiateMultipartUploadResult{
		XMLNS:    s3XMLNS,
		Bucket:   target.Bucket,
		Key:      target.Key,
		UploadID: uploadID,
	})
}

func (s *Service) handleUploadPart(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	q := r.URL.Query()
	uploadID, err := getSingleQueryValue(q, "uploadId")
	if err != nil {
		return err
	}
	if uploadID == "" {
		return storage.ErrInvalidRequest
	}
	partNumberValue, err := getSingleQueryValue(q, "partNumber")
	if err != nil {
		return err
	}
	partNumber, err := strconv.Atoi(partNumberValue)
	if err != nil || partNumber <= 0 {
		return storage.ErrInvalidRequest
	}
	part, err := s.Backend.UploadPart(r.Context(), target.Bucket, uploadID, partNumber, r.Body)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", quoteETag(part.ETag))
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleCompleteMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	uploadID, err := getSingleQueryValue(r.URL.Query(), "uploadId")
	if err != nil {
		return err
	}
	if uploadID == "" {
		return storage.ErrInvalidRequest
	}
	var reqBody completeMultipartUploadRequest
	if r.Body != nil && r.Body != http.NoBody {
		decoder := xml.NewDecoder(r.Body)
		if err := decoder.Decode(&reqBody); err != nil && err != io.EOF {
			if isRequestBodyTooLarge(err) {
				return storage.ErrEntityTooLarge
			}
			return s3err.MalformedXML
		}
		if reqBody.XMLName.Local != "" && reqBody.XMLName.Local != "CompleteMultipartUpload" {
			return s3err.MalformedXML
		}
	}

	parts := make([]storage.CompletedPart, 0, len(reqBody.Parts))
	for _, part := range reqBody.Parts {
		if part.PartNumber <= 0 {
			return storage.ErrInvalidRequest
		}
		parts = append(parts, storage.CompletedPart{PartNumber: part.PartNumber, ETag: part.ETag})
	}

	obj, err := s.Backend.CompleteMultipartUpload(r.Context(), target.Bucket, target.Key, uploadID, parts)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(completeMultipartUploadResult{
		XMLNS:    s3XMLNS,
		Location: "/" + target.Bucket + "/" + target.Key,
		Bucket:   target.Bucket,
		Key:      target.Key,
		ETag:     quoteETag(obj.ETag),
	})
}

func (s *Service) handleAbortMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	uploadID, err := getSingleQueryValue(r.URL.Query(), "uploadId")
	if err != nil {
		return err
	}
	if uploadID == "" {
		return storage.ErrInvalidRequest
	}
	if err := s.Backend.AbortMultipartUpload(r.Context(), target.Bucket, uploadID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Service) handleListMultipartUploads(w http.ResponseWriter, r *http.Request, bucket string) error {
	q := r.URL.Query()
	keyMarker, err := getSingleQueryValue(q, "key-marker")
	if err != nil {
		return err
	}
	uploadIDMarker, err := getSingleQueryValue(q, "upload-id-marker")
	if err != nil {
		return err
	}
	if uploadIDMarker != "" && keyMarker == "" {
		return storage.ErrInvalidRequest
	}
	maxUploads := 1000
	maxUploadsValue, err := getSingleQueryValue(q, "max-uploads")
	if err != nil {
		return err
	}
	if maxUploadsValue != "" {
		parsed, parseErr := strconv.Atoi(maxUploadsValue)
		if parseErr != nil || parsed <= 0 {
			return storage.ErrInvalidRequest
		}
		maxUploads = parsed
	}
	if maxUploads > 1000 {
		maxUploads = 1000
	}

	uploads, err := s.Backend.ListMultipartUploads(r.Context(), bucket)
	if err != nil {
		return err
	}

	out := listMultipartUploadsResult{
		XMLNS:          s3XMLNS,
		Bucket:         bucket,
		KeyMarker:      keyMarker,
		UploadIDMarker: uploadIDMarker,
		MaxUploads:     maxUploads,
	}
	for _, upload := range uploads {
		if keyMarker != "" {
			if upload.Key < keyMarker {
				continue
			}
			if upload.Key == keyMarker && (uploadIDMarker == "" || upload.UploadID <= uploadIDMarker) {
				continue
			}
		}
		if len(out.Uploads) == maxUploads {
			out.IsTruncated = true
			out.NextKeyMarker = out.Uploads[len(out.Uploads)-1].Key
			out.NextUploadIDMarker = out.Uploads[len(out.Uploads)-1].UploadID
			break
		}
		out.Uploads = append(out.Uploads, listMultipartUploadXML{
			Key:       upload.Key,
			UploadID:  upload.UploadID,
			Initiated: formatS3XMLTime(upload.Initiated),
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

func (s *Service) handleListParts(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	q := r.URL.Query()
	uploadID, err := getSingleQueryValue(q, "uploadId")
	if err != nil {
		return err
	}
	if uploadID == "" {
		return storage.ErrInvalidRequest
	}
	partNumberMarker := 0
	partNumberMarkerValue, err := getSingleQueryValue(q, "part-number-marker")
	if err != nil {
		return err
	}
	if partNumberMarkerValue != "" {
		parsed, parseErr := strconv.Atoi(partNumberMarkerValue)
		if parseErr != nil || parsed < 0 || parsed > 10000 {
			return storage.ErrInvalidRequest
		}
		partNumberMarker = parsed
	}
	maxParts := 1000
	maxPartsValue, err := getSingleQueryValue(q, "max-parts")
	if err != nil {
		return err
	}
	if maxPartsValue != "" {
		parsed, parseErr := strconv.Atoi(maxPartsValue)
		if parseErr != nil || parsed <= 0 {
			return storage.ErrInvalidRequest
		}
		maxParts = parsed
	}
	if maxParts > 1000 {
		maxParts = 1000
	}

	res, err := s.Backend.ListParts(r.Context(), target.Bucket, uploadID, storage.ListPartsOptions{
		PartNumberMarker: partNumberMarker,
		MaxParts:         maxParts,
	})
	if err != nil {
		return err
	}

	out := listPartsResult{
		XMLNS:                s3XMLNS,
		Bucket:               target.Bucket,
		Key:                  target.Key,
		UploadID:             uploadID,
		PartNumberMarker:     partNumberMarker,
		NextPartNumberMarker: res.NextPartNumberMarker,
		MaxParts:             maxParts,
		IsTruncated:          res.IsTruncated,
	}
	for _, part := range res.Parts {
		out.Parts = append(out.Parts, listPartResult{
			PartNumber:   part.PartNumber,
			LastModified: formatS3XMLTime(part.LastModified),
			ETag:         quoteETag(part.ETag),
			Size:         part.Size,
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(out)
}

func applyObjectHeaders(headers http.Header, stat storage.ObjectStat) {
	contentType := stat.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers.Set("Content-Type", contentType)
	headers.Set("Accept-Ranges", "bytes")
	if !stat.LastModified.IsZero() {
		headers.Set("Last-Modified", stat.LastModified.UTC().Format(http.TimeFormat))
	}
}

func isRequestBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
