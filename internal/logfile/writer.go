package logfile

import (
	"bufio"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logging"
	"github.com/lanikai/alohacap/internal/packet"
)

var log = logging.DefaultLogger.WithTag("logfile")

var (
	ErrFieldsFrozen = errors.New("fields must be registered before open")
	ErrUnknownField = errors.New("field handle not registered")
	ErrQueueFull    = errors.New("compressor queue full")
	ErrNoFrame      = errors.New("no frame in progress")
	ErrNotOpen      = errors.New("log not open")
)

// Handle identifies a registered field. Handles are assigned in registration
// order starting at zero.
type Handle int

// DefaultQueueDepth is the number of frames that may wait for the compressor.
const DefaultQueueDepth = 16

type Options struct {
	Compression Compression

	// QueueDepth bounds the frames waiting for the compressor. Zero means
	// DefaultQueueDepth.
	QueueDepth int

	// FPS is the nominal frame rate recorded in the header. Zero if unknown.
	FPS float64

	// RunID tags the log. A random ID is generated when zero.
	RunID uuid.UUID

	// Metadata is stored in the header as key/value pairs.
	Metadata map[string]string
}

// A Writer records frames to a log file. Fields are registered once, before
// Open; each frame is then assembled with NewFrame and AddField and submitted
// with WriteFrame. Compression and disk writes happen on a separate goroutine,
// so WriteFrame(false) never waits for earlier frames to drain.
//
// Apart from Stats, a Writer must be used from a single goroutine.
type Writer struct {
	opts   Options
	fields []frame.Descriptor
	pools  []sync.Pool

	path    string
	file    *os.File
	queue   chan *record
	done    chan struct{}
	pending *record
	closed  bool

	written uint64 // atomic
	dropped uint64 // atomic
	size    int64  // atomic

	errMu sync.Mutex
	err   error // first asynchronous write error
}

type record struct {
	time     time.Time
	payloads [][]byte // indexed by handle; nil if absent
	err      error
}

// Stats is a snapshot of writer progress.
type Stats struct {
	Written uint64 // frames on disk (buffered writes included)
	Dropped uint64 // frames rejected because the queue was full
	Bytes   int64  // bytes written to the file so far
	Queued  int    // frames waiting for the compressor
}

func NewWriter(opts Options) *Writer {
	if opts.Compression.Codec == 0 {
		opts.Compression = DefaultCompression
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}
	return &Writer{opts: opts}
}

// RegisterField declares a field that frames may carry. All fields must be
// registered before Open; the set is fixed for the life of the log.
func (w *Writer) RegisterField(name string, width, height int, kind frame.Kind) (Handle, error) {
	if w.file != nil || w.closed {
		return -1, ErrFieldsFrozen
	}
	d := frame.Descriptor{Name: name, Width: width, Height: height, Kind: kind}
	if err := d.Validate(); err != nil {
		return -1, err
	}
	for _, f := range w.fields {
		if f.Name == name {
			return -1, errors.Errorf("field %s already registered", name)
		}
	}
	w.fields = append(w.fields, d)
	log.Debug("Registered field %s: %dx%d %v", name, width, height, kind)
	return Handle(len(w.fields) - 1), nil
}

// Fields returns the registered field descriptors, indexed by handle.
func (w *Writer) Fields() []frame.Descriptor {
	return append([]frame.Descriptor(nil), w.fields...)
}

func (w *Writer) RunID() uuid.UUID {
	return w.opts.RunID
}

func (w *Writer) Path() string {
	return w.path
}

// Open creates the log file, writes the header, and starts the compressor.
func (w *Writer) Open(path string) error {
	if w.file != nil || w.closed {
		return errors.New("log already opened")
	}
	if len(w.fields) == 0 {
		return errors.New("no fields registered")
	}

	comp, err := newCompressor(w.opts.Compression)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create log")
	}

	hdr := w.encodeHeader()
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return errors.Wrap(err, "write header")
	}

	w.path = path
	w.file = f
	w.size = int64(len(hdr))
	w.pools = make([]sync.Pool, len(w.fields))
	w.queue = make(chan *record, w.opts.QueueDepth)
	w.done = make(chan struct{})

	go w.compressLoop(comp, bufio.NewWriterSize(f, 1<<20))

	log.Info("Logging %d fields to %s (%v)", len(w.fields), path, w.opts.Compression)
	return nil
}

func (w *Writer) encodeHeader() []byte {
	pw := packet.NewWriterSize(256)
	pw.WriteSlice([]byte(magicHeader))
	pw.WriteUint16(version)
	pw.WriteByte(byte(w.opts.Compression.Codec))
	pw.WriteByte(byte(w.opts.Compression.Level))
	pw.WriteFloat32(float32(w.opts.FPS))
	pw.WriteSlice(w.opts.RunID[:])

	keys := make([]string, 0, len(w.opts.Metadata))
	for k := range w.opts.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pw.WriteUint16(uint16(len(keys)))
	for _, k := range keys {
		if err := pw.WriteString8(k); err != nil {
			log.Warn("Truncating metadata key %.32q: %v", k, err)
			pw.WriteString8(k[:255])
		}
		v := w.opts.Metadata[k]
		if len(v) > 0xffff {
			log.Warn("Truncating metadata value for %s", k)
			v = v[:0xffff]
		}
		pw.WriteString16(v)
	}

	pw.WriteUint16(uint16(len(w.fields)))
	for _, f := range w.fields {
		pw.WriteString8(f.Name)
		pw.WriteUint32(uint32(f.Width))
		pw.WriteUint32(uint32(f.Height))
		pw.WriteByte(byte(f.Kind))
	}
	return pw.Bytes()
}

// NewFrame begins a record. A frame already in progress is discarded.
func (w *Writer) NewFrame() {
	if w.pending != nil {
		w.release(w.pending)
	}
	w.pending = &record{
		time:     time.Now(),
		payloads: make([][]byte, len(w.fields)),
	}
}

// AddField attaches one field's payload to the frame in progress. The payload
// is copied, so the caller may reuse it as soon as AddField returns. A failed
// AddField poisons the frame: the following WriteFrame reports the error and
// writes nothing.
func (w *Writer) AddField(h Handle, payload []byte) error {
	if w.file == nil || w.closed {
		return ErrNotOpen
	}
	rec := w.pending
	if rec == nil {
		return ErrNoFrame
	}
	if rec.err != nil {
		return rec.err
	}

	if h < 0 || int(h) >= len(w.fields) {
		rec.err = errors.Wrapf(ErrUnknownField, "handle %d", h)
		return rec.err
	}
	d := w.fields[h]
	if len(payload) != d.Size() {
		rec.err = errors.Errorf("field %s: payload is %d bytes, expected %d", d.Name, len(payload), d.Size())
		return rec.err
	}
	if rec.payloads[h] != nil {
		rec.err = errors.Errorf("field %s added twice", d.Name)
		return rec.err
	}

	buf, _ := w.pools[h].Get().([]byte)
	if cap(buf) < len(payload) {
		buf = make([]byte, len(payload))
	}
	buf = buf[:len(payload)]
	copy(buf, payload)
	rec.payloads[h] = buf
	return nil
}

// AddImage attaches img to the frame in progress, checking that its geometry
// matches the registered field.
func (w *Writer) AddImage(h Handle, img *frame.Image) error {
	if rec := w.pending; rec != nil && rec.err == nil && h >= 0 && int(h) < len(w.fields) {
		d := w.fields[h]
		if img.Width != d.Width || img.Height != d.Height || img.Kind != d.Kind {
			rec.err = errors.Errorf("field %s: got %dx%d %v image, registered %dx%d %v",
				d.Name, img.Width, img.Height, img.Kind, d.Width, d.Height, d.Kind)
			return rec.err
		}
	}
	return w.AddField(h, img.Pix)
}

// WriteFrame submits the frame in progress to the compressor. With block set,
// it waits for room in the queue; otherwise it returns ErrQueueFull at once
// when the compressor is behind, and the frame is dropped. A nil return does
// not mean the frame is on disk yet.
func (w *Writer) WriteFrame(block bool) error {
	if w.file == nil || w.closed {
		return ErrNotOpen
	}
	rec := w.pending
	w.pending = nil
	if rec == nil {
		return ErrNoFrame
	}
	if rec.err != nil {
		w.release(rec)
		return errors.Wrap(rec.err, "frame discarded")
	}
	if err := w.asyncErr(); err != nil {
		w.release(rec)
		return err
	}

	if block {
		w.queue <- rec
		return nil
	}

	select {
	case w.queue <- rec:
		return nil
	default:
		atomic.AddUint64(&w.dropped, 1)
		w.release(rec)
		return ErrQueueFull
	}
}

// Close drains the queue, writes the index, and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.pending != nil {
		w.release(w.pending)
		w.pending = nil
	}
	if w.file == nil {
		return nil
	}

	close(w.queue)
	<-w.done

	err := w.asyncErr()
	if cerr := w.file.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close log")
	}
	st := w.Stats()
	log.Info("Closed %s: %d frames, %d dropped, %d bytes", w.path, st.Written, st.Dropped, st.Bytes)
	return err
}

func (w *Writer) Stats() Stats {
	st := Stats{
		Written: atomic.LoadUint64(&w.written),
		Dropped: atomic.LoadUint64(&w.dropped),
		Bytes:   atomic.LoadInt64(&w.size),
	}
	if w.queue != nil {
		st.Queued = len(w.queue)
	}
	return st
}

func (w *Writer) compressLoop(comp *compressor, out *bufio.Writer) {
	defer close(w.done)

	var offsets []uint64
	offset := uint64(atomic.LoadInt64(&w.size))
	hdr := packet.NewWriterSize(recordHeader + fieldHeader*len(w.fields))

	for rec := range w.queue {
		if w.asyncErr() != nil {
			w.release(rec)
			continue
		}

		n, err := w.writeRecord(comp, out, hdr, rec)
		w.release(rec)
		if err != nil {
			w.setErr(errors.Wrap(err, "write record"))
			continue
		}
		offsets = append(offsets, offset)
		offset += uint64(n)
		atomic.AddInt64(&w.size, int64(n))
		atomic.AddUint64(&w.written, 1)
	}

	if w.asyncErr() != nil {
		out.Flush()
		return
	}

	// Index trailer.
	hdr.Reset()
	hdr.WriteUint32(magicIndex)
	hdr.WriteUint32(uint32(len(offsets)))
	for _, o := range offsets {
		hdr.WriteUint64(o)
	}
	hdr.WriteUint64(offset)
	hdr.WriteUint32(magicEnd)
	if _, err := out.Write(hdr.Bytes()); err != nil {
		w.setErr(errors.Wrap(err, "write index"))
	} else {
		atomic.AddInt64(&w.size, int64(hdr.Length()))
	}
	if err := out.Flush(); err != nil {
		w.setErr(errors.Wrap(err, "flush"))
	}
}

func (w *Writer) writeRecord(comp *compressor, out *bufio.Writer, hdr *packet.Writer, rec *record) (int, error) {
	present := 0
	for _, p := range rec.payloads {
		if p != nil {
			present++
		}
	}

	hdr.Reset()
	hdr.WriteUint32(magicRecord)
	hdr.WriteUint64(uint64(rec.time.UnixNano()))
	hdr.WriteUint16(uint16(present))
	if _, err := out.Write(hdr.Bytes()); err != nil {
		return 0, err
	}
	n := hdr.Length()

	for h, p := range rec.payloads {
		if p == nil {
			continue
		}
		data, err := comp.compress(p)
		if err != nil {
			return n, errors.Wrapf(err, "compress %s", w.fields[h].Name)
		}
		hdr.Reset()
		hdr.WriteUint16(uint16(h))
		hdr.WriteUint32(uint32(len(p)))
		hdr.WriteUint32(uint32(len(data)))
		if _, err := out.Write(hdr.Bytes()); err != nil {
			return n, err
		}
		if _, err := out.Write(data); err != nil {
			return n, err
		}
		n += hdr.Length() + len(data)
	}
	return n, nil
}

// release returns payload buffers to their pools.
func (w *Writer) release(rec *record) {
	for h, p := range rec.payloads {
		if p != nil && h < len(w.pools) {
			w.pools[h].Put(p[:0])
		}
	}
	rec.payloads = nil
}

func (w *Writer) asyncErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *Writer) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		log.Error("%v", err)
		w.err = err
	}
}
