package observability

import "errors"

// ErrUnsupportedExporter is returned for an unknown tracing exporter name.
var ErrUnsupportedExporter = errors.New("unsupported tracing exporter")
