package s3

import (
	"net"
	"strings"
)

// IsValidBucketName enforces the S3 bucket naming rules: 3-63
// characters, lowercase letters, digits, hyphens and dots, DNS-label
// shaped, and never an IP address.
func IsValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	for _, r := range name {
		isDigit := r >= '0' && r <= '9'
		isLower := r >= 'a' && r <= 'z'
		if !(isDigit || isLower || r == '-' || r == '.') {
			return false
		}
	}
	if net.ParseIP(name) != nil {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}
