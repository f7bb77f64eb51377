package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnrecognizedExtension marks a session file whose suffix is not part of
	// the known dataset schema.
	ErrUnrecognizedExtension = errors.New("unrecognized extension")
	// ErrAmbiguousGroup marks more than two files sharing one series key.
	ErrAmbiguousGroup = errors.New("ambiguous series group")
	// ErrEmptyFile marks a zero-byte source image.
	ErrEmptyFile = errors.New("empty file")
	// ErrUnsupportedFormat marks an image encoding no decoder handles.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrMalformedIdentifier marks a series uid without subject or session markers.
	ErrMalformedIdentifier = errors.New("malformed identifier")
	// ErrMissingSessionRoot marks an archive file that belongs to no session.
	ErrMissingSessionRoot = errors.New("missing session root")
	// ErrSpacingDerivationUnsupported marks tag-based spacing for a modality
	// whose geometry cannot be derived from PixelSpacing alone.
	ErrSpacingDerivationUnsupported = errors.New("spacing derivation unsupported")
	// ErrMalformedArchive marks an unreadable or corrupt shard.
	ErrMalformedArchive = errors.New("malformed archive")
	// ErrInvalidTags marks a tag sidecar whose shape is not a mapping.
	ErrInvalidTags = errors.New("invalid tags")
)

// Wrap builds an error message that includes stage context while tagging it
// with marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
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
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}

// Disposition is the pipeline's response to an error.
type Disposition int

const (
	// Skip drops the item as an expected data condition.
	Skip Disposition = iota
	// SkipItem drops the item and counts it as a failure.
	SkipItem
	// Fatal stops the run.
	Fatal
)

func (d Disposition) String() string {
	switch d {
	case Skip:
		return "skip"
	case SkipItem:
		return "failed"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps err to a Disposition. Schema drift, malformed archives and
// cancellation are fatal; known data conditions are skipped; anything else
// fails only the item at hand.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return Skip
	case errors.Is(err, ErrUnrecognizedExtension),
		errors.Is(err, ErrMalformedArchive),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return Fatal
	case errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrAmbiguousGroup),
		errors.Is(err, ErrMissingSessionRoot):
		return Skip
	default:
		return SkipItem
	}
}

// Reason returns a short label for the first marker err carries.
func Reason(err error) string {
	for _, m := range []struct {
		marker error
		label  string
	}{
		{ErrUnrecognizedExtension, "unrecognized_extension"},
		{ErrAmbiguousGroup, "ambiguous_group"},
		{ErrEmptyFile, "empty_file"},
		{ErrUnsupportedFormat, "unsupported_format"},
		{ErrMalformedIdentifier, "malformed_identifier"},
		{ErrMissingSessionRoot, "missing_session_root"},
		{ErrSpacingDerivationUnsupported, "spacing_unsupported"},
		{ErrMalformedArchive, "malformed_archive"},
		{ErrInvalidTags, "invalid_tags"},
	} {
		if errors.Is(err, m.marker) {
			return m.label
		}
	}
	return "error"
}
