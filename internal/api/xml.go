package api

import (
	"encoding/xml"
	"net/url"
	"strings"
	"time"

	"github.com/hardyscc/storage-svc/internal/storage"
)

const s3XMLNS = "http://s3.amazonaws.com/doc/2006-03-01/"

type owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName,omitempty"`
}

type listAllMyBucketsResult struct {
	XMLName xml.Name            `xml:"ListAllMyBucketsResult"`
	XMLNS   string              `xml:"xmlns,attr"`
	Owner   owner               `xml:"Owner"`
	Buckets []listBucketElement `xml:"Buckets>Bucket"`
}

type listBucketElement struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

type createBucketConfiguration struct {
	XMLName            xml.Name `xml:"CreateBucketConfiguration"`
	LocationConstraint string   `xml:"LocationConstraint"`
}

type listBucketResult struct {
	XMLName               xml.Name             `xml:"ListBucketResult"`
	XMLNS                 string               `xml:"xmlns,attr"`
	Name                  string               `xml:"Name"`
	Prefix                string               `xml:"Prefix,omitempty"`
	Marker                string               `xml:"Marker,omitempty"`
	ContinuationToken     string               `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string               `xml:"NextContinuationToken,omitempty"`
	KeyCount              int                  `xml:"KeyCount"`
	MaxKeys               int                  `xml:"MaxKeys"`
	IsTruncated           bool                 `xml:"IsTruncated"`
	Contents              []listObjectContents `xml:"Contents"`
}

type listObjectContents struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type deleteObjectsRequest struct {
	XMLName xml.Name              `xml:"Delete"`
	Quiet   bool                  `xml:"Quiet"`
	Objects []deleteObjectElement `xml:"Object"`
}

type deleteObjectElement struct {
	Key string `xml:"Key"`
}

type deleteObjectsResult struct {
	XMLName xml.Name             `xml:"DeleteResult"`
	XMLNS   string               `xml:"xmlns,attr"`
	Deleted []deletedObjectXML   `xml:"Deleted"`
	Errors  []deleteErrorItemXML `xml:"Error"`
}

type deletedObjectXML struct {
	Key string `xml:"Key"`
}

type deleteErrorItemXML struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

type initiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	XMLNS    string   `xml:"xmlns,attr"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

type completeMultipartUploadRequest struct {
	XMLName xml.Name `xml:"CompleteMultipartUpload"`
	Parts   []struct {
		PartNumber int    `xml:"PartNumber"`
		ETag       string `xml:"ETag"`
	} `xml:"Part"`
}

type completeMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	XMLNS    string   `xml:"xmlns,attr"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

type listMultipartUploadsResult struct {
	XMLName            xml.Name                 `xml:"ListMultipartUploadsResult"`
	XMLNS              string                   `xml:"xmlns,attr"`
	Bucket             string                   `xml:"Bucket"`
	KeyMarker          string                   `xml:"KeyMarker,omitempty"`
	UploadIDMarker     string                   `xml:"UploadIdMarker,omitempty"`
	NextKeyMarker      string                   `xml:"NextKeyMarker,omitempty"`
	NextUploadIDMarker string                   `xml:"NextUploadIdMarker,omitempty"`
	MaxUploads         int                      `xml:"MaxUploads"`
	IsTruncated        bool                     `xml:"IsTruncated"`
	Uploads            []listMultipartUploadXML `xml:"Upload"`
}

type listMultipartUploadXML struct {
	Key       string `xml:"Key"`
	UploadID  string `xml:"UploadId"`
	Initiated string `xml:"Initiated"`
}

type listPartsResult struct {
	XMLName              xml.Name         `xml:"ListPartsResult"`
	XMLNS                string           `xml:"xmlns,attr"`
	Bucket               string           `xml:"Bucket"`
	Key                  string           `xml:"Key"`
	UploadID             string           `xml:"UploadId"`
	PartNumberMarker     int              `xml:"PartNumberMarker"`
	NextPartNumberMarker int              `xml:"NextPartNumberMarker,omitempty"`
	MaxParts             int              `xml:"MaxParts"`
	IsTruncated          bool             `xml:"IsTruncated"`
	Parts                []listPartResult `xml:"Part"`
}

type listPartResult struct {
	PartNumber   int    `xml:"PartNumber"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

func quoteETag(etag string) string {
	trimmed := strings.Trim(strings.TrimSpace(etag), "\"")
	if trimmed == "" {
		return "\"\""
	}
	return `"` + trimmed + `"`
}

func formatS3XMLTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func getSingleQueryValue(q url.Values, key string) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return "", nil
	}
	first := values[0]
	for _, value := range values[1:] {
		if value != first {
			return "", storage.ErrInvalidRequest
		}
	}
	return first, nil
}
