package effectchain

// Built-in node kinds.
const (
	KindCompressor = "compressor"
	KindLimiter    = "limiter"
)

// DefaultRegistry returns a Registry holding the built-in node kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.MustRegister(KindCompressor, CompressorSchema, func(ctx Context) (Effect, error) {
		return NewCompressor(ctx)
	})
	r.MustRegister(KindLimiter, LimiterSchema, func(ctx Context) (Effect, error) {
		return NewLimiter(ctx)
	})

	return r
}
