package differ

// Option configures diff behavior.
type Option func(*differ)

// WithWorkers sets how many goroutines diff the intersection key set.
// Values below 1 fall back to the default.
func WithWorkers(n int) Option {
	return func(d *differ) {
		if n >= 1 {
			d.workers = n
		}
	}
}

// WithIgnoreFields excludes fields from comparison on top of the
// schema's key and metadata fields.
func WithIgnoreFields(fields ...string) Option {
	return func(d *differ) {
		for _, f := range fields {
			d.ignoreFields[f] = true
		}
	}
}
