package nest

import "errors"

// Errors returned by the engine. They are wrapped with context (paths, keys)
// and should be matched with errors.Is.
var (
	// ErrTemplateDirNotFound is returned by New when the template directory is missing.
	ErrTemplateDirNotFound = errors.New("expected template directory")

	// ErrTemplateFileNotFound is returned when a template name has no backing file.
	ErrTemplateFileNotFound = errors.New("expected template file")

	// ErrTemplateFileRead is returned when a template file exists but cannot be read.
	ErrTemplateFileRead = errors.New("error reading template file")

	// ErrNoNameLabel is returned for a Keyed value without the configured label key.
	ErrNoNameLabel = errors.New("encountered keyed value with no name label")

	// ErrInvalidNameLabel is returned when the label key does not hold Text.
	ErrInvalidNameLabel = errors.New("encountered keyed value with invalid name label type")

	// ErrBadParams is returned when DieOnBadParams is set and a key has no token in the template.
	ErrBadParams = errors.New("bad params in keyed value, variable not present in template file")

	// ErrUnsupportedValue is returned for numbers, booleans, null or nil values.
	ErrUnsupportedValue = errors.New("cannot handle number, boolean or null values")
)
