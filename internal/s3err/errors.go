// Package s3err translates internal errors into the XML error bodies
// and status codes the S3 protocol defines.
package s3err

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/hardyscc/storage-svc/internal/auth"
	"github.com/hardyscc/storage-svc/internal/chunked"
	"github.com/hardyscc/storage-svc/internal/s3"
	"github.com/hardyscc/storage-svc/internal/sigv4"
	"github.com/hardyscc/storage-svc/internal/storage"
)

type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e APIError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	AccessDenied            = APIError{Code: "AccessDenied", Message: "Access Denied", StatusCode: http.StatusForbidden}
	SignatureDoesNotMatch   = APIError{Code: "SignatureDoesNotMatch", Message: "The request signature we calculated does not match the signature you provided.", StatusCode: http.StatusForbidden}
	RequestTimeTooSkewed    = APIError{Code: "RequestTimeTooSkewed", Message: "The difference between the request time and the current time is too large.", StatusCode: http.StatusForbidden}
	RequestTimeout          = APIError{Code: "RequestTimeout", Message: "Your socket connection to the server was not read from or written to within the timeout period.", StatusCode: http.StatusBadRequest}
	NoSuchBucket            = APIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist.", StatusCode: http.StatusNotFound}
	NoSuchKey               = APIError{Code: "NoSuchKey", Message: "The specified key does not exist.", StatusCode: http.StatusNotFound}
	NoSuchUpload            = APIError{Code: "NoSuchUpload", Message: "The specified multipart upload does not exist.", StatusCode: http.StatusNotFound}
	BucketAlreadyOwnedByYou = APIError{Code: "BucketAlreadyOwnedByYou", Message: "Your previous request to create the named bucket succeeded and you already own it.", StatusCode: http.StatusConflict}
	BucketNotEmpty          = APIError{Code: "BucketNotEmpty", Message: "The bucket you tried to delete is not empty.", StatusCode: http.StatusConflict}
	InvalidBucketName       = APIError{Code: "InvalidBucketName", Message: "The specified bucket is not valid.", StatusCode: http.StatusBadRequest}
	EntityTooLarge          = APIError{Code: "EntityTooLarge", Message: "Your proposed upload exceeds the maximum allowed object size.", StatusCode: http.StatusRequestEntityTooLarge}
	InvalidRange            = APIError{Code: "InvalidRange", Message: "The requested range is not satisfiable.", StatusCode: http.StatusRequestedRangeNotSatisfiable}
	InvalidPart             = APIError{Code: "InvalidPart", Message: "One or more of the specified parts could not be found.", StatusCode: http.StatusBadRequest}
	InvalidPartOrder        = APIError{Code: "InvalidPartOrder", Message: "The list of parts was not in ascending order.", StatusCode: http.StatusBadRequest}
	IncompleteBody          = APIError{Code: "IncompleteBody", Message: "The request body was malformed or ended before the declared data was received.", StatusCode: http.StatusBadRequest}
	InvalidRequest          = APIError{Code: "InvalidRequest", Message: "The request is malformed or invalid for this operation.", StatusCode: http.StatusBadRequest}
	MethodNotAllowed        = APIError{Code: "MethodNotAllowed", Message: "The specified method is not allowed against this resource.", StatusCode: http.StatusMethodNotAllowed}
	MalformedXML            = APIError{Code: "MalformedXML", Message: "The XML you provided was not well-formed or did not validate against our published schema.", StatusCode: http.StatusBadRequest}
	InternalError           = APIError{Code: "InternalError", Message: "We encountered an internal error. Please try again.", StatusCode: http.StatusInternalServerError}
)

type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`
}

func Write(w http.ResponseWriter, requestID string, apiErr APIError, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(apiErr.StatusCode)
	_ = xml.NewEncoder(w).Encode(errorResponse{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Resource:  resource,
		RequestID: requestID,
	})
}

// MapError converts an internal error into its protocol-level shape.
// An unknown access key deliberately maps to SignatureDoesNotMatch,
// the same answer a wrong secret gets, so responses do not reveal
// which access keys exist. An Authorization header in a scheme this
// server does not speak is AccessDenied, like a missing header; a
// recognized header with broken fields is SignatureDoesNotMatch.
func MapError(err error) APIError {
	var apiErr APIError
	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		return InternalError
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, storage.ErrNoSuchBucket):
		return NoSuchBucket
	case errors.Is(err, storage.ErrNoSuchKey):
		return NoSuchKey
	case errors.Is(err, storage.ErrBucketNotEmpty):
		return BucketNotEmpty
	case errors.Is(err, storage.ErrBucketExists):
		return BucketAlreadyOwnedByYou
	case errors.Is(err, storage.ErrInvalidBucketName):
		return InvalidBucketName
	case errors.Is(err, storage.ErrInvalidKey):
		return InvalidRequest
	case errors.Is(err, storage.ErrEntityTooLarge):
		return EntityTooLarge
	case errors.As(err, &maxBytesErr):
		return EntityTooLarge
	case errors.Is(err, storage.ErrInvalidRange):
		return InvalidRange
	case errors.Is(err, storage.ErrNoSuchUpload):
		return NoSuchUpload
	case errors.Is(err, storage.ErrInvalidPart):
		return InvalidPart
	case errors.Is(err, storage.ErrInvalidPartOrder):
		return InvalidPartOrder
	case errors.Is(err, storage.ErrInvalidRequest):
		return InvalidRequest
	case errors.Is(err, chunked.ErrMalformedFraming):
		return IncompleteBody
	case errors.Is(err, auth.ErrMissingAuthorization), errors.Is(err, sigv4.ErrUnsupportedAuthorization):
		return AccessDenied
	case errors.Is(err, auth.ErrUnknownAccessKey), errors.Is(err, auth.ErrSignatureMismatch):
		return SignatureDoesNotMatch
	case errors.Is(err, sigv4.ErrClockSkew):
		return RequestTimeTooSkewed
	case errors.Is(err, sigv4.ErrInvalidTimestamp), errors.Is(err, sigv4.ErrMissingTimestamp):
		return SignatureDoesNotMatch
	case errors.Is(err, sigv4.ErrMalformedAuthorization), errors.Is(err, sigv4.ErrInvalidSignedHeaders):
		return SignatureDoesNotMatch
	case errors.Is(err, s3.ErrInvalidRequestPath):
		return InvalidBucketName
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RequestTimeout
	default:
		return InternalError
	}
}
