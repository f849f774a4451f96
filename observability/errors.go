package observability

import "errors"

// ErrInvalidExporter is returned for an unknown exporter name
var ErrInvalidExporter = errors.New("invalid exporter")
