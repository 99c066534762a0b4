package nfe

import "errors"

var (
	// ErrMalformedDocument means the envelope is not an NF-e or a required node is missing.
	ErrMalformedDocument = errors.New("malformed nf-e document")
	// ErrUnsupportedSchemaVersion means item or totals nodes are shaped for another layout.
	ErrUnsupportedSchemaVersion = errors.New("unsupported nf-e schema version")
)
