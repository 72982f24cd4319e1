package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDecode          = errors.New("decode error")
	ErrCacheCorruption = errors.New("cache corruption")
	ErrMissingAsset    = errors.New("missing asset")
	ErrHostCommit      = errors.New("host commit error")
	ErrManifest        = errors.New("malformed manifest")
	ErrConfiguration   = errors.New("configuration error")
)

// Kind names recorded as the reason prefix of failed ledger records.
const (
	KindDecode          = "DecodeError"
	KindCacheCorruption = "CacheCorruptionError"
	KindMissingAsset    = "MissingAssetError"
	KindHostCommit      = "HostCommitError"
	KindManifest        = "ManifestError"
	KindConfiguration   = "ConfigurationError"
	KindCanceled        = "Canceled"
	KindUnknown         = "Error"
)

// Wrap builds an error message that includes the tile and operation while
// tagging it with the provided marker for later classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, tileID, operation, message string, err error) error {
	detail := buildDetail(tileID, operation, message)
	if marker == nil {
		marker = ErrDecode
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to its taxonomy name.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrMissingAsset):
		return KindMissingAsset
	case errors.Is(err, ErrManifest):
		return KindManifest
	case errors.Is(err, ErrHostCommit):
		return KindHostCommit
	case errors.Is(err, ErrCacheCorruption):
		return KindCacheCorruption
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

var markers = []error{ErrDecode, ErrMissingAsset, ErrManifest, ErrHostCommit, ErrCacheCorruption, ErrConfiguration}

// Reason renders an error as "<Kind>: <message>" with the leading sentinel
// text stripped, the form stored in failed ledger records. The leading
// sentinel is removed even when Kind classifies by a nested one.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range markers {
		if prefix := marker.Error() + ": "; strings.HasPrefix(msg, prefix) {
			msg = strings.TrimPrefix(msg, prefix)
			break
		}
	}
	return Kind(err) + ": " + msg
}

func buildDetail(tileID, operation, message string) string {
	parts := make([]string, 0, 3)
	if tileID = strings.TrimSpace(tileID); tileID != "" {
		parts = append(parts, tileID)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "tile failure"
	}
	return strings.Join(parts, ": ")
}
