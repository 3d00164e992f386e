// Package frame defines the per-cycle sensor payloads that flow from a source
// to the sinks: fields, their pixel kinds, and owned image buffers.
package frame

import (
	"time"
)

// Field identifies one named payload within a frame.
type Field int

const (
	Left Field = iota
	Right
	Depth

	// NumFields is the number of distinct fields.
	NumFields
)

// Fields lists every field in dispatch order: primary image, then the second
// view, then depth.
var Fields = [NumFields]Field{Left, Right, Depth}

func (f Field) Name() string {
	switch f {
	case Left:
		return "left"
	case Right:
		return "right"
	case Depth:
		return "depth"
	default:
		return "unknown"
	}
}

func (f Field) String() string {
	return f.Name()
}

// Kind is the payload kind a field carries.
func (f Field) Kind() Kind {
	if f == Depth {
		return Depth32F
	}
	return BGRA8
}

// FieldSet is a set of requested fields. The zero value is empty.
type FieldSet uint8

func NewFieldSet(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s = s.With(f)
	}
	return s
}

func (s FieldSet) With(f Field) FieldSet {
	return s | 1<<uint(f)
}

func (s FieldSet) Has(f Field) bool {
	return s&(1<<uint(f)) != 0
}

// List returns the members of s in dispatch order.
func (s FieldSet) List() []Field {
	var out []Field
	for _, f := range Fields {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// A Frame is the output of one acquisition cycle. Only requested fields that
// the source could provide are present. Frames are not retained past the cycle
// that produced them.
type Frame struct {
	// Seq counts successful cycles from zero.
	Seq int

	// Time is when the frame was grabbed.
	Time time.Time

	images [NumFields]*Image
}

func (f *Frame) Set(field Field, img *Image) {
	f.images[field] = img
}

// Get returns the payload for field, or nil if it is absent.
func (f *Frame) Get(field Field) *Image {
	if field < 0 || field >= NumFields {
		return nil
	}
	return f.images[field]
}

func (f *Frame) Has(field Field) bool {
	return f.Get(field) != nil
}

// Reset clears all payloads, keeping the Frame for reuse.
func (f *Frame) Reset(seq int, t time.Time) {
	f.Seq = seq
	f.Time = t
	f.images = [NumFields]*Image{}
}
