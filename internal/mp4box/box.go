// Package mp4box reads just enough of the ISO/IEC 14496-12 box structure to
// recognise fragmented MP4 boundaries: top-level box headers, immediate
// children of a container, and the trun first-sample-flags bit.
package mp4box

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of a compact box header (32-bit size + 4cc).
const HeaderSize = 8

// Box types the feed engine cares about.
const (
	TypeFtyp = "ftyp"
	TypeMoov = "moov"
	TypeMoof = "moof"
	TypeMdat = "mdat"
	TypeTraf = "traf"
	TypeTrun = "trun"
	TypeTfhd = "tfhd"
)

// trunFirstSampleFlagsPresent is the trun tr_flags bit 0x000004.
const trunFirstSampleFlagsPresent = 0x04

// ErrMalformedBox is returned when a box header cannot be read.
var ErrMalformedBox = errors.New("malformed box")

// Header is a decoded box header.
type Header struct {
	Size uint32
	Type string
}

// ReadHeader decodes the box header starting at offset.
func ReadHeader(buf []byte, offset int) (Header, error) {
	if offset < 0 || len(buf)-offset < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrMalformedBox, HeaderSize, offset, max(len(buf)-offset, 0))
	}
	return Header{
		Size: binary.BigEndian.Uint32(buf[offset : offset+4]),
		Type: latin1(buf[offset+4 : offset+8]),
	}, nil
}

// TopLevelType returns the 4cc of the box at the start of chunk, or "" when
// the chunk is too short to carry a header.
func TopLevelType(chunk []byte) string {
	h, err := ReadHeader(chunk, 0)
	if err != nil {
		return ""
	}
	return h.Type
}

// FindChild treats buf as a single box and returns the first immediate child
// whose type matches. The returned slice aliases buf.
//
// The walk stops (reporting not found) on an unreadable header, a child size
// smaller than a header, or a child that runs past the container.
func FindChild(buf []byte, boxType string) ([]byte, bool) {
	parent, err := ReadHeader(buf, 0)
	if err != nil {
		return nil, false
	}

	end := int(parent.Size)
	if end > len(buf) {
		end = len(buf)
	}

	for offset := HeaderSize; offset < end; {
		child, err := ReadHeader(buf[:end], offset)
		if err != nil {
			return nil, false
		}
		size := int(child.Size)
		if size < HeaderSize || size > end-offset {
			return nil, false
		}
		if child.Type == boxType {
			return buf[offset : offset+size], true
		}
		offset += size
	}
	return nil, false
}

// TrunHasFirstSampleFlags reports whether a trun box carries a
// first_sample_flags field. The box layout is size(4) type(4) version(1)
// flags(3); the flag lives in the last flags byte.
func TrunHasFirstSampleFlags(trun []byte) bool {
	if len(trun) < 13 {
		return false
	}
	flags := trun[10:13]
	return flags[1]&trunFirstSampleFlagsPresent != 0
}

// MoofSignalsFirstSample reports whether the moof's first traf/trun declares
// first-sample flags, which marks a fragment that is safe to start decoding
// from.
func MoofSignalsFirstSample(moof []byte) bool {
	traf, ok := FindChild(moof, TypeTraf)
	if !ok {
		return false
	}
	trun, ok := FindChild(traf, TypeTrun)
	if !ok {
		return false
	}
	return TrunHasFirstSampleFlags(trun)
}

// Walk calls fn for every complete top-level box in buf, in order. It stops at
// the first box that does not fit and returns the number of bytes consumed.
// A declared size below the header size yields ErrMalformedBox.
func Walk(buf []byte, fn func(h Header, box []byte) error) (int, error) {
	offset := 0
	for len(buf)-offset >= HeaderSize {
		h, err := ReadHeader(buf, offset)
		if err != nil {
			return offset, err
		}
		size := int(h.Size)
		if size < HeaderSize {
			return offset, fmt.Errorf("%w: %q declares size %d", ErrMalformedBox, h.Type, h.Size)
		}
		if size > len(buf)-offset {
			break
		}
		if err := fn(h, buf[offset:offset+size]); err != nil {
			return offset, err
		}
		offset += size
	}
	return offset, nil
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
