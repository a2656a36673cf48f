package cann

// opOptions holds the optional parameters of an operation
type opOptions struct {
	stream *Stream
	mask   *NpuMat
	dst    *NpuMat
	scale  float64
	// dtype is the output depth, negative keeps the input depth
	dtype Depth
}

// Option sets an optional parameter of an operation
type Option func(*opOptions)

// WithStream enqueues the operation on the stream and returns without
// waiting.  The result is valid once the stream has reached the operation.
func WithStream(s *Stream) Option {
	return func(o *opOptions) {
		o.stream = s
	}
}

// WithMask restricts the elements written to those where the U8 single
// channel mask is non-zero.  Elements outside the mask keep the value the
// destination held before the operation.
func WithMask(mask *NpuMat) Option {
	return func(o *opOptions) {
		o.mask = mask
	}
}

// WithScale multiplies the result before the saturating cast, used by
// Multiply, Divide and ConvertTo
func WithScale(scale float64) Option {
	return func(o *opOptions) {
		o.scale = scale
	}
}

// WithDType sets the depth of the output array
func WithDType(d Depth) Option {
	return func(o *opOptions) {
		o.dtype = d
	}
}

// WithDst writes the result into an existing array instead of allocating a
// new one.  The array is reallocated if its geometry does not match the
// result and no mask is given.
func WithDst(dst *NpuMat) Option {
	return func(o *opOptions) {
		o.dst = dst
	}
}

// newOptions applies opts over the defaults
func newOptions(opts []Option) opOptions {

	o := opOptions{
		scale: 1,
		dtype: -1,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// StreamOf returns the stream set by the options, nil for the null stream
func StreamOf(opts ...Option) *Stream {
	return newOptions(opts).stream
}
