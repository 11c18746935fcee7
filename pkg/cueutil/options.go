// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize is the default maximum size of a configuration document (5MB).
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

type (
	validateOptions struct {
		filename string
	}

	// Option configures validation behavior.
	Option func(*validateOptions)
)

func defaultOptions() validateOptions {
	return validateOptions{
		filename: "<input>",
	}
}

// WithFilename sets the filename used as the prefix of error messages.
func WithFilename(name string) Option {
	return func(o *validateOptions) {
		o.filename = name
	}
}
