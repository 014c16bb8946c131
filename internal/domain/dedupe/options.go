package dedupe

// Option configures New.
type Option func(*window)

// WithMaxSize bounds how many IDs are remembered. Once full, the oldest ID
// is evicted. maxSize <= 0 means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(w *window) {
		w.maxSize = maxSize
	}
}
