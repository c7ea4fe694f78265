package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMetadata       = errors.New("metadata error")
	ErrConversion     = errors.New("conversion failed")
	ErrExtraction     = errors.New("extraction failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrUpload         = errors.New("upload failed")
	ErrStaging        = errors.New("staging error")
	ErrConfiguration  = errors.New("configuration error")
	ErrValidation     = errors.New("validation error")
	ErrTimeout        = errors.New("timeout")
	ErrExternalTool   = errors.New("external tool error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

var failureKinds = []struct {
	marker error
	label  string
}{
	{ErrConfiguration, "configuration"},
	{ErrMetadata, "metadata"},
	{ErrConversion, "conversion"},
	{ErrExtraction, "extraction"},
	{ErrAuthentication, "authentication"},
	{ErrUpload, "upload"},
	{ErrStaging, "staging"},
}

// FailureKind returns a short label for the first marker err carries. The label
// is used as error_kind in logs, notifications and history records.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range failureKinds {
		if errors.Is(err, kind.marker) {
			return kind.label
		}
	}
	return "unknown"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
