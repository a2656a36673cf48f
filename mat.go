package cann

import (
	"image"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Scalar holds up to four per channel values
type Scalar [4]float64

// NewScalar returns a Scalar with the given channel values
func NewScalar(v ...float64) Scalar {
	var s Scalar
	copy(s[:], v)
	return s
}

// deviceMem is device memory shared by an array and the queued operations
// that reference it.  It is returned to the allocator when the last
// reference is released.
type deviceMem struct {
	buf  *Buffer
	dev  *device
	refs atomic.Int64
}

func (m *deviceMem) retain() {
	m.refs.Add(1)
}

func (m *deviceMem) release() {

	if m.refs.Add(-1) != 0 {
		return
	}

	if err := m.dev.alloc.Free(m.buf); err != nil {
		m.dev.ctx.log.Warn("error freeing device memory", "device", m.dev.id, "error", err)
	}
}

// NpuMat is an array resident in device memory.  The shape and type are
// fixed from allocation until Release or a Create with a different geometry.
// An NpuMat is not safe for concurrent mutation, concurrent read only use by
// several streams is safe.
type NpuMat struct {
	ctx   *Context
	epoch uint64
	dev   *device
	rows  int
	cols  int
	typ   MatType
	mem   *deviceMem
}

// NewNpuMat returns an empty array on the active device
func (c *Context) NewNpuMat() (*NpuMat, error) {

	dev, err := c.activeDevice("NewNpuMat")

	if err != nil {
		return nil, err
	}

	return c.newMatOn(dev), nil
}

// NewNpuMatWithSize returns an array of the given geometry on the active
// device, its contents are undefined
func (c *Context) NewNpuMatWithSize(rows, cols int, typ MatType) (*NpuMat, error) {

	m, err := c.NewNpuMat()

	if err != nil {
		return nil, err
	}

	err = m.Create(rows, cols, typ)

	if err != nil {
		return nil, err
	}

	return m, nil
}

// NewNpuMatWithScalar returns an array of the given geometry with every
// pixel set to s
func (c *Context) NewNpuMatWithScalar(rows, cols int, typ MatType, s Scalar, opts ...Option) (*NpuMat, error) {

	m, err := c.NewNpuMatWithSize(rows, cols, typ)

	if err != nil {
		return nil, err
	}

	err = m.SetTo(s, opts...)

	if err != nil {
		m.Release()
		return nil, err
	}

	return m, nil
}

// newMatOn returns an empty array on the device
func (c *Context) newMatOn(dev *device) *NpuMat {
	return &NpuMat{
		ctx:   c,
		epoch: dev.ctx.currentEpoch(),
		dev:   dev,
	}
}

// Rows returns the number of rows
func (m *NpuMat) Rows() int {
	return m.rows
}

// Cols returns the number of columns
func (m *NpuMat) Cols() int {
	return m.cols
}

// Channels returns the number of channels
func (m *NpuMat) Channels() int {
	if m.mem == nil {
		return 0
	}
	return m.typ.Channels()
}

// Type returns the array type
func (m *NpuMat) Type() MatType {
	return m.typ
}

// Depth returns the element depth
func (m *NpuMat) Depth() Depth {
	return m.typ.Depth()
}

// ElemSize returns the size of a pixel in bytes
func (m *NpuMat) ElemSize() int {
	if m.mem == nil {
		return 0
	}
	return m.typ.ElemSize()
}

// Step returns the number of bytes in a row, device arrays are always
// continuous
func (m *NpuMat) Step() int {
	return m.cols * m.ElemSize()
}

// Total returns the number of pixels
func (m *NpuMat) Total() int {
	return m.rows * m.cols
}

// Empty reports if the array has no device memory
func (m *NpuMat) Empty() bool {
	return m.mem == nil
}

// Size returns the width and height of the array
func (m *NpuMat) Size() image.Point {
	return image.Pt(m.cols, m.rows)
}

// Shape returns the dimensions of the array as rows, cols, channels
func (m *NpuMat) Shape() []int {
	if m.mem == nil {
		return nil
	}
	return []int{m.rows, m.cols, m.typ.Channels()}
}

// DeviceID returns the device the array is resident on
func (m *NpuMat) DeviceID() int {
	return m.dev.id
}

// sameGeometry reports if the array is allocated with the given geometry
func (m *NpuMat) sameGeometry(rows, cols int, typ MatType) bool {
	return m.mem != nil && m.rows == rows && m.cols == cols && m.typ == typ
}

// view returns the kernel view of the array
func (m *NpuMat) view() view {
	return view{
		rows: m.rows,
		cols: m.cols,
		typ:  m.typ,
		data: m.mem.buf.Bytes(),
	}
}

// ready checks the array can be used by the named operation
func (m *NpuMat) ready(op string) error {

	if m == nil {
		return newError(ErrCodeUninitialized, op, "array is nil")
	}

	if err := m.ctx.checkHandle(op, m.epoch); err != nil {
		return err
	}

	if m.mem == nil {
		return &Error{Code: ErrCodeUninitialized, Op: op}
	}

	return nil
}

// Create allocates device memory for the geometry.  It does nothing if the
// array is already allocated with the same geometry.
func (m *NpuMat) Create(rows, cols int, typ MatType) error {
	return m.create("Create", rows, cols, typ)
}

func (m *NpuMat) create(op string, rows, cols int, typ MatType) error {

	if err := m.ctx.checkHandle(op, m.epoch); err != nil {
		return err
	}

	if rows <= 0 || cols <= 0 {
		return newError(ErrCodeShapeMismatch, op, "invalid size %dx%d", rows, cols)
	}

	if !typ.Valid() {
		return newError(ErrCodeUnsupported, op, "invalid type %d", int(typ))
	}

	if m.sameGeometry(rows, cols, typ) {
		return nil
	}

	buf, err := m.dev.alloc.Allocate(rows * cols * typ.ElemSize())

	if err != nil {
		return err
	}

	m.Release()

	mem := &deviceMem{buf: buf, dev: m.dev}
	mem.refs.Store(1)

	m.mem = mem
	m.rows = rows
	m.cols = cols
	m.typ = typ

	return nil
}

// Release drops the array's device memory, it is returned to the allocator
// once queued operations using it have completed.  Calling Release on an
// empty array does nothing.
func (m *NpuMat) Release() {

	if m.mem == nil {
		return
	}

	mem := m.mem
	m.mem = nil
	m.rows = 0
	m.cols = 0
	m.typ = 0

	mem.release()
}

// hostBytes returns a copy of the host Mat's data
func hostBytes(host gocv.Mat) []byte {

	if host.IsContinuous() {
		return host.ToBytes()
	}

	tmp := host.Clone()
	defer tmp.Close()

	return tmp.ToBytes()
}

// hostType validates a host Mat can be uploaded and returns its type
func hostType(op string, host gocv.Mat) (MatType, error) {

	if host.Empty() {
		return 0, newError(ErrCodeUninitialized, op, "host mat is empty")
	}

	typ := TypeFromGocv(host.Type())

	if !typ.Valid() {
		return 0, newError(ErrCodeUnsupported, op, "host mat type %d is not supported", int(host.Type()))
	}

	return typ, nil
}

// checkUploadGeometry returns the error for an upload into an allocated
// array of different geometry
func (m *NpuMat) checkUploadGeometry(op string, rows, cols int, typ MatType) error {

	if m.mem == nil {
		return nil
	}

	if m.rows != rows || m.cols != cols || m.typ.Channels() != typ.Channels() {
		return newError(ErrCodeShapeMismatch, op, "array is %v, host is [%d %d %d]",
			m.Shape(), rows, cols, typ.Channels())
	}

	if m.typ.Depth() != typ.Depth() {
		return newError(ErrCodeDtypeMismatch, op, "array is %s, host is %s",
			m.typ.Depth(), typ.Depth())
	}

	return nil
}

// Upload copies the host Mat to the device, allocating the array if it is
// empty.  An allocated array must have the same shape and depth as the host
// Mat.  The host data is captured when the call is made so the Mat may be
// reused as soon as Upload returns, even when WithStream is given.
func (m *NpuMat) Upload(host gocv.Mat, opts ...Option) error {
	return m.upload("Upload", host, false, opts)
}

// TryUpload copies the host Mat into an already allocated array of the
// same geometry, it never allocates
func (m *NpuMat) TryUpload(host gocv.Mat, opts ...Option) error {
	return m.upload("TryUpload", host, true, opts)
}

func (m *NpuMat) upload(op string, host gocv.Mat, strict bool, opts []Option) error {

	if err := m.ctx.checkHandle(op, m.epoch); err != nil {
		return err
	}

	if strict && m.mem == nil {
		return &Error{Code: ErrCodeUninitialized, Op: op}
	}

	typ, err := hostType(op, host)

	if err != nil {
		return err
	}

	err = m.checkUploadGeometry(op, host.Rows(), host.Cols(), typ)

	if err != nil {
		return err
	}

	err = m.create(op, host.Rows(), host.Cols(), typ)

	if err != nil {
		return err
	}

	data := hostBytes(host)
	dst := m.view()
	o := newOptions(opts)

	return m.ctx.run(op, m.dev, o.stream, func() error {
		copy(dst.data, data)
		return nil
	}, m)
}

// UploadConvert copies the host Mat to the device converting its elements
// to depth d with a saturating cast, the only coercion applied on upload
func (m *NpuMat) UploadConvert(host gocv.Mat, d Depth, opts ...Option) error {

	op := "UploadConvert"

	if err := m.ctx.checkHandle(op, m.epoch); err != nil {
		return err
	}

	srcTyp, err := hostType(op, host)

	if err != nil {
		return err
	}

	if !d.Valid() {
		return newError(ErrCodeUnsupported, op, "invalid depth %d", int(d))
	}

	typ := MakeType(d, srcTyp.Channels())

	err = m.checkUploadGeometry(op, host.Rows(), host.Cols(), typ)

	if err != nil {
		return err
	}

	err = m.create(op, host.Rows(), host.Cols(), typ)

	if err != nil {
		return err
	}

	src := view{rows: host.Rows(), cols: host.Cols(), typ: srcTyp, data: hostBytes(host)}
	dst := m.view()
	o := newOptions(opts)

	return m.ctx.run(op, m.dev, o.stream, func() error {
		return m.ctx.elementwise(dst, src, nil, nil, false, func(_ int, a, _ float64) float64 {
			return a
		})
	}, m)
}

// UploadBytes copies raw element data to the allocated array, the length
// must equal Rows * Step
func (m *NpuMat) UploadBytes(data []byte, opts ...Option) error {

	op := "UploadBytes"

	if err := m.ready(op); err != nil {
		return err
	}

	if len(data) != m.rows*m.Step() {
		return newError(ErrCodeShapeMismatch, op, "got %d bytes, array holds %d", len(data), m.rows*m.Step())
	}

	snap := make([]byte, len(data))
	copy(snap, data)

	dst := m.view()
	o := newOptions(opts)

	return m.ctx.run(op, m.dev, o.stream, func() error {
		copy(dst.data, snap)
		return nil
	}, m)
}

// Download copies the array to a new host Mat of the same shape and type.
// It waits for the issuing stream to reach the copy, the null stream when
// no stream is given.  The caller must Close the returned Mat.
func (m *NpuMat) Download(opts ...Option) (gocv.Mat, error) {

	op := "Download"

	if err := m.ready(op); err != nil {
		return gocv.Mat{}, err
	}

	o := newOptions(opts)

	s, err := m.ctx.streamFor(op, m.dev, o.stream)

	if err != nil {
		return gocv.Mat{}, err
	}

	host := gocv.NewMatWithSize(m.rows, m.cols, m.typ.Gocv())

	data, err := host.DataPtrUint8()

	if err != nil {
		host.Close()
		return gocv.Mat{}, newError(ErrCodeDeviceOperationFailed, op, "host mat: %v", err)
	}

	src := m.view()

	err = m.ctx.run(op, m.dev, s, func() error {
		copy(data, src.data)
		return nil
	}, m)

	if err == nil && !s.null {
		err = s.wait()
	}

	if err != nil {
		host.Close()
		return gocv.Mat{}, err
	}

	return host, nil
}

// DownloadAsync enqueues a copy of the array into dst, which must already
// have the array's shape and type.  dst holds the data once the stream has
// completed and must stay open until then.
func (m *NpuMat) DownloadAsync(dst *gocv.Mat, s *Stream) error {

	op := "DownloadAsync"

	if err := m.ready(op); err != nil {
		return err
	}

	if dst == nil || dst.Rows() != m.rows || dst.Cols() != m.cols {
		return newError(ErrCodeShapeMismatch, op, "host mat does not match array shape %v", m.Shape())
	}

	if TypeFromGocv(dst.Type()) != m.typ {
		return newError(ErrCodeDtypeMismatch, op, "host mat is %s, array is %s",
			TypeFromGocv(dst.Type()), m.typ)
	}

	data, err := dst.DataPtrUint8()

	if err != nil {
		return newError(ErrCodeShapeMismatch, op, "host mat: %v", err)
	}

	src := m.view()

	return m.ctx.run(op, m.dev, s, func() error {
		copy(data, src.data)
		return nil
	}, m)
}

// SetTo sets every pixel to the scalar, or only those selected by
// WithMask
func (m *NpuMat) SetTo(s Scalar, opts ...Option) error {

	op := "SetTo"

	if err := m.ready(op); err != nil {
		return err
	}

	o := newOptions(opts)

	mask, err := m.ctx.maskFor(op, o, m.dev, m.rows, m.cols)

	if err != nil {
		return err
	}

	dst := m.view()
	px := encodePixel(m.typ, s)

	return m.ctx.run(op, m.dev, o.stream, func() error {
		return m.ctx.parallel(dst.rows, func(y int) error {
			for x := 0; x < dst.cols; x++ {
				if mask != nil && mask.data[y*dst.cols+x] == 0 {
					continue
				}

				copy(dst.pixel(x, y), px)
			}

			return nil
		})
	}, m, o.mask)
}

// ConvertTo returns the array converted to depth d.  Elements are multiplied
// by WithScale and rounded half to even with saturation for integral depths.
func (m *NpuMat) ConvertTo(d Depth, opts ...Option) (*NpuMat, error) {

	op := "ConvertTo"

	if err := m.ready(op); err != nil {
		return nil, err
	}

	if !d.Valid() {
		return nil, newError(ErrCodeUnsupported, op, "invalid depth %d", int(d))
	}

	o := newOptions(opts)
	typ := MakeType(d, m.typ.Channels())

	dst, _, err := m.ctx.output(op, o, m.dev, m.rows, m.cols, typ, m)

	if err != nil {
		return nil, err
	}

	src, out := m.view(), dst.view()
	scale := o.scale

	err = m.ctx.run(op, m.dev, o.stream, func() error {
		return m.ctx.elementwise(out, src, nil, nil, false, func(_ int, a, _ float64) float64 {
			return a * scale
		})
	}, m, dst)

	return dst, err
}

// Clone returns a copy of the array on the same device
func (m *NpuMat) Clone(opts ...Option) (*NpuMat, error) {

	op := "Clone"

	if err := m.ready(op); err != nil {
		return nil, err
	}

	o := newOptions(opts)

	dst, _, err := m.ctx.output(op, o, m.dev, m.rows, m.cols, m.typ, m)

	if err != nil {
		return nil, err
	}

	src, out := m.view(), dst.view()

	err = m.ctx.run(op, m.dev, o.stream, func() error {
		copy(out.data, src.data)
		return nil
	}, m, dst)

	return dst, err
}

// Crop returns a copy of the region of interest, ErrInvalidROI is returned
// when the region is empty or leaves the array
func (m *NpuMat) Crop(roi image.Rectangle, opts ...Option) (*NpuMat, error) {

	op := "Crop"

	if err := m.ready(op); err != nil {
		return nil, err
	}

	if err := checkROI(op, roi, m.rows, m.cols); err != nil {
		return nil, err
	}

	o := newOptions(opts)

	dst, _, err := m.ctx.output(op, o, m.dev, roi.Dy(), roi.Dx(), m.typ, m)

	if err != nil {
		return nil, err
	}

	src, out := m.view(), dst.view()

	err = m.ctx.run(op, m.dev, o.stream, func() error {
		cropView(out, src, roi)
		return nil
	}, m, dst)

	return dst, err
}

// checkROI validates roi lies within an array of rows by cols
func checkROI(op string, roi image.Rectangle, rows, cols int) error {

	bounds := image.Rect(0, 0, cols, rows)

	if roi.Empty() || !roi.In(bounds) {
		return newError(ErrCodeInvalidROI, op, "roi %v outside of %v", roi, bounds)
	}

	return nil
}

// cropView copies the roi of src into dst
func cropView(dst, src view, roi image.Rectangle) {

	es := src.typ.ElemSize()
	n := roi.Dx() * es

	for y := 0; y < roi.Dy(); y++ {
		off := (roi.Min.Y+y)*src.step() + roi.Min.X*es
		copy(dst.row(y), src.data[off:off+n])
	}
}
