package logfile

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/packet"
)

// defaultCacheSize is the number of decoded records a Reader keeps.
const defaultCacheSize = 4

// A Reader provides random access to the records of a log file. It is safe
// for concurrent use.
type Reader struct {
	file *os.File
	path string

	compression Compression
	fps         float64
	runID       uuid.UUID
	metadata    map[string]string
	fields      []frame.Descriptor

	// Start of each record, plus one entry for the end of the last record.
	offsets []int64

	// Whether the index trailer was present.
	indexed bool

	mu    sync.Mutex
	cache *lru.Cache
}

// A Record is one decoded frame.
type Record struct {
	Index    int
	Time     time.Time
	payloads [][]byte
}

// Field returns the payload for h, or nil if the record does not carry it.
func (rec *Record) Field(h Handle) []byte {
	if h < 0 || int(h) >= len(rec.payloads) {
		return nil
	}
	return rec.payloads[h]
}

// OpenReader opens a log and loads its index. Logs without an index (for
// example, after a crash) are scanned, and any incomplete final record is
// ignored.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open log")
	}

	r := &Reader{
		file:  f,
		path:  path,
		cache: lru.New(defaultCacheSize),
	}
	if err := r.load(); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "%s", path)
	}

	if !r.indexed {
		log.Warn("%s has no index, recovered %d frames by scanning", path, r.NumFrames())
	}
	log.Debug("Opened %s: %d fields, %d frames, %v", path, len(r.fields), r.NumFrames(), r.compression)
	return r, nil
}

func (r *Reader) load() error {
	st, err := r.file.Stat()
	if err != nil {
		return err
	}
	size := st.Size()

	// The header is small, but metadata may be large. Read generously and
	// retry with the whole prefix if that is not enough.
	n := int64(64 << 10)
	for {
		if n > size {
			n = size
		}
		buf := make([]byte, n)
		if _, err := r.file.ReadAt(buf, 0); err != nil && err != io.EOF {
			return err
		}
		end, err := r.parseHeader(buf)
		if errors.Is(err, packet.ErrShortBuffer) && n < size {
			n *= 4
			continue
		}
		if err != nil {
			return err
		}
		return r.loadOffsets(int64(end), size)
	}
}

func (r *Reader) parseHeader(buf []byte) (int, error) {
	pr := packet.NewReader(buf)
	if string(pr.ReadSlice(len(magicHeader))) != magicHeader {
		if err := pr.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New("not a log file")
	}
	if v := pr.ReadUint16(); v != version && pr.Err() == nil {
		return 0, errors.Errorf("unsupported log version %d", v)
	}
	r.compression.Codec = Codec(pr.ReadUint8())
	r.compression.Level = int(pr.ReadUint8())
	r.fps = float64(pr.ReadFloat32())
	copy(r.runID[:], pr.ReadSlice(16))

	nmeta := int(pr.ReadUint16())
	r.metadata = make(map[string]string, nmeta)
	for i := 0; i < nmeta && pr.Err() == nil; i++ {
		k := pr.ReadString8()
		r.metadata[k] = pr.ReadString16()
	}

	nfields := int(pr.ReadUint16())
	r.fields = nil
	for i := 0; i < nfields && pr.Err() == nil; i++ {
		d := frame.Descriptor{
			Name:   pr.ReadString8(),
			Width:  int(pr.ReadUint32()),
			Height: int(pr.ReadUint32()),
			Kind:   frame.Kind(pr.ReadUint8()),
		}
		if pr.Err() == nil {
			if err := d.Validate(); err != nil {
				return 0, err
			}
		}
		r.fields = append(r.fields, d)
	}
	if err := pr.Err(); err != nil {
		return 0, err
	}
	if err := r.compression.validate(); err != nil {
		return 0, err
	}
	return pr.Offset(), nil
}

func (r *Reader) loadOffsets(start, size int64) error {
	if offsets, ok := r.readIndex(start, size); ok {
		r.offsets = offsets
		r.indexed = true
		return nil
	}

	// Scan record headers until the data runs out or stops making sense.
	offsets := []int64{start}
	pos := start
	hdr := make([]byte, recordHeader)
	fhdr := make([]byte, fieldHeader)
	for {
		if _, err := r.file.ReadAt(hdr, pos); err != nil {
			break
		}
		pr := packet.NewReader(hdr)
		if pr.ReadUint32() != magicRecord {
			break
		}
		pr.Skip(8)
		count := int(pr.ReadUint16())

		next := pos + recordHeader
		complete := true
		for i := 0; i < count; i++ {
			if _, err := r.file.ReadAt(fhdr, next); err != nil {
				complete = false
				break
			}
			fr := packet.NewReader(fhdr)
			fr.Skip(6)
			next += fieldHeader + int64(fr.ReadUint32())
		}
		if !complete || next > size {
			break
		}
		pos = next
		offsets = append(offsets, pos)
	}
	r.offsets = offsets
	return nil
}

func (r *Reader) readIndex(start, size int64) ([]int64, bool) {
	if size < start+trailerTail {
		return nil, false
	}
	tail := make([]byte, trailerTail)
	if _, err := r.file.ReadAt(tail, size-trailerTail); err != nil {
		return nil, false
	}
	tr := packet.NewReader(tail)
	indexAt := int64(tr.ReadUint64())
	if tr.ReadUint32() != magicEnd || indexAt < start || indexAt > size-trailerTail-8 {
		return nil, false
	}

	buf := make([]byte, size-trailerTail-indexAt)
	if _, err := r.file.ReadAt(buf, indexAt); err != nil {
		return nil, false
	}
	ir := packet.NewReader(buf)
	if ir.ReadUint32() != magicIndex {
		return nil, false
	}
	count := int(ir.ReadUint32())
	if ir.Remaining() != 8*count {
		return nil, false
	}
	offsets := make([]int64, 0, count+1)
	for i := 0; i < count; i++ {
		o := int64(ir.ReadUint64())
		if o < start || o >= indexAt || (i > 0 && o <= offsets[i-1]) {
			return nil, false
		}
		offsets = append(offsets, o)
	}
	return append(offsets, indexAt), true
}

func (r *Reader) Path() string {
	return r.path
}

func (r *Reader) NumFrames() int {
	return len(r.offsets) - 1
}

// FPS returns the nominal frame rate recorded by the writer, or zero.
func (r *Reader) FPS() float64 {
	return r.fps
}

func (r *Reader) RunID() uuid.UUID {
	return r.runID
}

func (r *Reader) Compression() Compression {
	return r.compression
}

func (r *Reader) Metadata() map[string]string {
	return r.metadata
}

// Fields returns the field descriptors, indexed by handle.
func (r *Reader) Fields() []frame.Descriptor {
	return r.fields
}

// Field looks up a field by name.
func (r *Reader) Field(name string) (Handle, frame.Descriptor, bool) {
	for i, d := range r.fields {
		if d.Name == name {
			return Handle(i), d, true
		}
	}
	return -1, frame.Descriptor{}, false
}

// SetCacheSize sets how many decoded records are kept for repeated reads.
func (r *Reader) SetCacheSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.MaxEntries = n
	for r.cache.Len() > n && n > 0 {
		r.cache.RemoveOldest()
	}
}

// ReadFrame decodes record n. It returns io.EOF when n is past the last
// record. The returned Record is shared with the cache and must not be
// modified.
func (r *Reader) ReadFrame(n int) (*Record, error) {
	if n < 0 {
		return nil, errors.Errorf("invalid frame index %d", n)
	}
	if n >= r.NumFrames() {
		return nil, io.EOF
	}

	r.mu.Lock()
	if v, ok := r.cache.Get(n); ok {
		r.mu.Unlock()
		return v.(*Record), nil
	}
	r.mu.Unlock()

	start, end := r.offsets[n], r.offsets[n+1]
	buf := make([]byte, end-start)
	if _, err := r.file.ReadAt(buf, start); err != nil {
		return nil, errors.Wrapf(err, "read frame %d", n)
	}
	rec, err := r.decodeRecord(n, buf)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", n)
	}

	r.mu.Lock()
	r.cache.Add(n, rec)
	r.mu.Unlock()
	return rec, nil
}

func (r *Reader) decodeRecord(n int, buf []byte) (*Record, error) {
	pr := packet.NewReader(buf)
	if pr.ReadUint32() != magicRecord {
		return nil, errors.New("bad record marker")
	}
	rec := &Record{
		Index:    n,
		Time:     time.Unix(0, int64(pr.ReadUint64())),
		payloads: make([][]byte, len(r.fields)),
	}
	count := int(pr.ReadUint16())
	for i := 0; i < count; i++ {
		h := int(pr.ReadUint16())
		raw := int(pr.ReadUint32())
		data := pr.ReadSlice(int(pr.ReadUint32()))
		if err := pr.Err(); err != nil {
			return nil, err
		}
		if h >= len(r.fields) {
			return nil, errors.Wrapf(ErrUnknownField, "handle %d", h)
		}
		if d := r.fields[h]; raw != d.Size() {
			return nil, errors.Errorf("field %s: %d bytes, expected %d", d.Name, raw, d.Size())
		}
		p, err := decompress(r.compression.Codec, make([]byte, raw), data)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", r.fields[h].Name)
		}
		rec.payloads[h] = p
	}
	return rec, pr.Err()
}

func (r *Reader) Close() error {
	return r.file.Close()
}
