// Package logfile reads and writes compressed multi-field frame logs.
//
// A log starts with a header declaring the fields every record may carry,
// followed by one record per frame. Each field payload is compressed on its
// own, with snappy or zlib. Close appends an index of record offsets so that
// readers can seek; logs that were cut short (no index) are recovered by
// scanning records up to the first incomplete one.
//
//	header  := "ALOG" version:u16 codec:u8 level:u8 fps:f32 run:[16]byte
//	           nmeta:u16 { key:str8 value:str16 }
//	           nfields:u16 { name:str8 width:u32 height:u32 kind:u8 }
//	record  := "FRAM" time:u64 nfields:u16 { handle:u16 raw:u32 size:u32 data }
//	trailer := "AIDX" count:u32 { offset:u64 } index:u64 "AEND"
//
// All integers are big-endian.
package logfile

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	version = 1

	magicHeader  = "ALOG"
	magicRecord  = 0x4652414d // "FRAM"
	magicIndex   = 0x41494458 // "AIDX"
	magicEnd     = 0x41454e44 // "AEND"
	trailerTail  = 12
	recordHeader = 4 + 8 + 2
	fieldHeader  = 2 + 4 + 4
)

// Codec selects the payload compressor.
type Codec uint8

const (
	Snappy Codec = iota + 1
	Zlib
)

func (c Codec) String() string {
	switch c {
	case Snappy:
		return "snappy"
	case Zlib:
		return "zlib"
	default:
		return "codec(" + strconv.Itoa(int(c)) + ")"
	}
}

// Compression is a codec and, for zlib, its level.
type Compression struct {
	Codec Codec
	Level int
}

// DefaultCompression favours speed, which matters more than size when
// recording at full frame rate.
var DefaultCompression = Compression{Codec: Snappy}

func (c Compression) String() string {
	if c.Codec == Zlib {
		return "zlib level " + strconv.Itoa(c.Level)
	}
	return c.Codec.String()
}

func (c Compression) validate() error {
	switch c.Codec {
	case Snappy:
		return nil
	case Zlib:
		if c.Level < 0 || c.Level > 9 {
			return errors.Errorf("zlib level %d out of range 0-9", c.Level)
		}
		return nil
	}
	return errors.Errorf("unknown codec %d", c.Codec)
}

// ParseCompression accepts a named preset ("snappy") or a numeric zlib level.
func ParseCompression(token string) (Compression, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.EqualFold(token, "snappy") {
		return DefaultCompression, nil
	}
	level, err := strconv.Atoi(token)
	if err != nil {
		return Compression{}, errors.Errorf("don't understand compression level %q", token)
	}
	c := Compression{Codec: Zlib, Level: level}
	if err := c.validate(); err != nil {
		return Compression{}, err
	}
	return c, nil
}
