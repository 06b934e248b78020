package s3

import "net/http"

type Operation string

const (
	OperationUnknown                 Operation = "Unknown"
	OperationListBuckets             Operation = "ListBuckets"
	OperationCreateBucket            Operation = "CreateBucket"
	OperationDeleteBucket            Operation = "DeleteBucket"
	OperationHeadBucket              Operation = "HeadBucket"
	OperationListObjects             Operation = "ListObjects"
	OperationDeleteObjects           Operation = "DeleteObjects"
	OperationPutObject               Operation = "PutObject"
	OperationGetObject               Operation = "GetObject"
	OperationHeadObject              Operation = "HeadObject"
	OperationDeleteObject            Operation = "DeleteObject"
	OperationCreateMultipartUpload   Operation = "CreateMultipartUpload"
	OperationUploadPart              Operation = "UploadPart"
	OperationCompleteMultipartUpload Operation = "CompleteMultipartUpload"
	OperationAbortMultipartUpload    Operation = "AbortMultipartUpload"
	OperationListMultipartUploads    Operation = "ListMultipartUploads"
	OperationListParts               Operation = "ListParts"
)

type DispatchQuery struct {
	ListType         string
	HasListType      bool
	HasDelete        bool
	Delimiter        string
	Prefix           string
	Continuation     string
	Marker           string
	MaxKeys          string
	HasUploads       bool
	HasUploadID      bool
	HasPartNumber    bool
	UploadID         string
	PartNumber       string
	KeyMarker        string
	UploadIDMarker   string
	MaxUploads       string
	MaxParts         string
	PartNumberMarker string
}

// ResolveOperation maps an HTTP method plus target and query shape to
// the S3 operation it requests. Sub-resource query parameters win over
// the plain method mapping, matching how real S3 dispatches.
func ResolveOperation(method string, target RequestTarget, query DispatchQuery, headers http.Header) Operation {
	if target.Bucket == "" {
		if method == http.MethodGet {
			return OperationListBuckets
		}
		return OperationUnknown
	}

	if target.Key == "" {
		switch method {
		case http.MethodPut:
			return OperationCreateBucket
		case http.MethodDelete:
			return OperationDeleteBucket
		case http.MethodHead:
			return OperationHeadBucket
		case http.MethodPost:
			if query.HasDelete {
				return OperationDeleteObjects
			}
		case http.MethodGet:
			if query.HasUploads {
				return OperationListMultipartUploads
			}
			return OperationListObjects
		}
		return OperationUnknown
	}

	switch method {
	case http.MethodPost:
		if query.HasUploads {
			return OperationCreateMultipartUpload
		}
		if query.HasUploadID {
			return OperationCompleteMultipartUpload
		}
		return OperationUnknown
	case http.MethodPut:
		if query.HasUploadID || query.HasPartNumber {
			if query.UploadID != "" && query.PartNumber != "" {
				return OperationUploadPart
			}
			return OperationUnknown
		}
		return OperationPutObject
	case http.MethodGet:
		if query.HasUploadID {
			return OperationListParts
		}
		return OperationGetObject
	case http.MethodHead:
		return OperationHeadObject
	case http.MethodDelete:
		if query.HasUploadID {
			return OperationAbortMultipartUpload
		}
		return OperationDeleteObject
	default:
		return OperationUnknown
	}
}
