// Package media resolves content-store references to displayable handles.
// It validates references before any network work, coalesces concurrent
// resolutions of the same reference into one fetch, and memoizes results
// within a validity window.
package media

import (
	"strings"
	"unicode"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
)

// Reference is a parsed content-store address of the shape
// scheme://bucket/key.
type Reference struct {
	Scheme string
	Bucket string
	Key    string
	raw    string
}

// String returns the original reference string.
func (r Reference) String() string {
	return r.raw
}

// forbiddenKeyChars are characters that would break markup or shell contexts
// when the key is later embedded in a display surface. Rejected outright.
const forbiddenKeyChars = "<>\"|`^{}\\"

// ParseReference validates a reference syntactically and splits it into its
// parts. All failures carry the validation class and name the violation.
func ParseReference(raw string) (Reference, error) {
	const op = "parseReference"

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return Reference{}, apierrors.Newf(op, apierrors.ClassValidation,
			"reference must match scheme://bucket/key").WithDetail(raw)
	}
	if scheme != "s3" && scheme != "https" {
		return Reference{}, apierrors.Newf(op, apierrors.ClassValidation,
			"unsupported scheme %q", scheme).WithDetail(raw)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return Reference{}, apierrors.Newf(op, apierrors.ClassValidation,
			"reference is missing an object key").WithDetail(raw)
	}

	// For https references the bucket is the first DNS label of the host,
	// the way virtual-hosted content-store URLs are formed.
	if scheme == "https" {
		if label, _, found := strings.Cut(bucket, "."); found {
			bucket = label
		}
	}

	if err := validateBucket(bucket, raw); err != nil {
		return Reference{}, err
	}
	if err := validateKey(key, raw); err != nil {
		return Reference{}, err
	}

	return Reference{Scheme: scheme, Bucket: bucket, Key: key, raw: raw}, nil
}

func validateBucket(bucket, raw string) error {
	const op = "validateBucket"

	if len(bucket) < 3 || len(bucket) > 63 {
		return apierrors.Newf(op, apierrors.ClassValidation,
			"bucket name must be between 3 and 63 characters").WithDetail(raw)
	}
	for _, r := range bucket {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '.' && r != '-' {
			return apierrors.Newf(op, apierrors.ClassValidation,
				"bucket name contains invalid character %q", r).WithDetail(raw)
		}
	}
	first, last := bucket[0], bucket[len(bucket)-1]
	if !isLowerAlnum(first) || !isLowerAlnum(last) {
		return apierrors.Newf(op, apierrors.ClassValidation,
			"bucket name must begin and end with a letter or digit").WithDetail(raw)
	}
	return nil
}

func validateKey(key, raw string) error {
	const op = "validateKey"

	if len(key) > 1024 {
		return apierrors.Newf(op, apierrors.ClassValidation,
			"object key cannot exceed 1024 characters").WithDetail(raw)
	}
	if strings.Contains(key, "..") {
		return apierrors.Newf(op, apierrors.ClassValidation,
			"object key cannot contain path traversal sequences").WithDetail(raw)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return apierrors.Newf(op, apierrors.ClassValidation,
				"object key cannot contain control characters").WithDetail(raw)
		}
		if strings.ContainsRune(forbiddenKeyChars, r) {
			return apierrors.Newf(op, apierrors.ClassValidation,
				"object key contains forbidden character %q", r).WithDetail(raw)
		}
	}
	return nil
}

func isLowerAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
