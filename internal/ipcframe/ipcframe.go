/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package ipcframe implements the length-prefixed framing a spawned
// daemon uses to write its result on stdout: an optional CGI-style
// header, a fixed response header, a sequence of attribute groups,
// and an end-of-response terminator. The parent poll-multiplexes one
// of these streams per daemon. The attribute TLV encoding IPP itself
// uses on the wire is out of scope; groups here carry a flat
// string-keyed attribute map, which is all the scheduler's own
// daemons need to report.
package ipcframe

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/gravwell/printsched/internal/ipp"
)

const cgiHeader = "Content-Type: application/ipp\n\n"

// GroupTag identifies the kind of attribute group a Group carries.
type GroupTag byte

const (
	GroupEnd       GroupTag = 0x00
	GroupOperation GroupTag = 0x01
	GroupPrinter   GroupTag = 0x02
)

var (
	ErrShortRead  = errors.New("ipcframe: short read decoding frame")
	ErrBadTag     = errors.New("ipcframe: unrecognized group tag")
	ErrAttrTooBig = errors.New("ipcframe: attribute exceeds encodable length")
)

// ResponseHeader is the fixed portion of a daemon's IPC response: the
// operation it answers, its status, and the request id echoed back
// from the command-line argument that invoked it.
type ResponseHeader struct {
	Operation ipp.Op
	Status    ipp.Status
	RequestID uint32
}

// Group is one attribute group: operation attributes, or one printer
// group per device enumerated.
type Group struct {
	Tag        GroupTag
	Attributes map[string]string
}

// RunningUnderCGI reports whether the process environment looks like
// a CGI invocation, the classic GATEWAY_INTERFACE marker.
func RunningUnderCGI() bool {
	return os.Getenv("GATEWAY_INTERFACE") != ""
}

// Writer frames a response onto an underlying stream.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteCGIHeaderIfNeeded emits the CGI content-type preamble when the
// process is running under a CGI-like environment.
func (fw *Writer) WriteCGIHeaderIfNeeded() error {
	if !RunningUnderCGI() {
		return nil
	}
	return fw.write([]byte(cgiHeader))
}

func (fw *Writer) WriteHeader(h ResponseHeader) error {
	var buf [8]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Operation))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(h.Status))
	binary.LittleEndian.PutUint32(buf[4:8], h.RequestID)
	return fw.write(buf[:])
}

// WriteGroup encodes one attribute group: a tag byte, a count of
// key/value pairs, then each pair as length-prefixed strings.
func (fw *Writer) WriteGroup(g Group) error {
	var buf []byte
	buf = append(buf, byte(g.Tag))
	var countBuf [2]byte
	binary.LittleEndian.PutUint16(countBuf[:], uint16(len(g.Attributes)))
	buf = append(buf, countBuf[:]...)
	for k, v := range g.Attributes {
		enc, err := encodePair(k, v)
		if err != nil {
			return err
		}
		buf = append(buf, enc...)
	}
	return fw.write(buf)
}

// WriteEnd writes the end-of-response terminator.
func (fw *Writer) WriteEnd() error {
	return fw.write([]byte{byte(GroupEnd), 0, 0})
}

func (fw *Writer) write(b []byte) error {
	if fw.err != nil {
		return fw.err
	}
	if _, err := fw.w.Write(b); err != nil {
		fw.err = err
	}
	return fw.err
}

func encodePair(k, v string) ([]byte, error) {
	if len(k) > 0xFFFF || len(v) > 0xFFFF {
		return nil, ErrAttrTooBig
	}
	buf := make([]byte, 0, 4+len(k)+len(v))
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(k)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, k...)
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(v)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, v...)
	return buf, nil
}

// Reader decodes frames written by Writer. It does not itself skip a
// leading CGI header; callers that might see one should strip it
// before constructing a Reader.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (fr *Reader) ReadHeader() (ResponseHeader, error) {
	var buf [8]byte
	if _, err := io.ReadFull(fr.r, buf[:]); err != nil {
		return ResponseHeader{}, err
	}
	return ResponseHeader{
		Operation: ipp.Op(binary.LittleEndian.Uint16(buf[0:2])),
		Status:    ipp.Status(binary.LittleEndian.Uint16(buf[2:4])),
		RequestID: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// ReadGroup reads the next group. ok is false once the end-of-response
// terminator has been consumed.
func (fr *Reader) ReadGroup() (g Group, ok bool, err error) {
	tagByte, err := fr.r.ReadByte()
	if err != nil {
		return Group{}, false, err
	}
	tag := GroupTag(tagByte)
	if tag == GroupEnd {
		// terminator carries a zero count; drain it.
		var countBuf [2]byte
		if _, err := io.ReadFull(fr.r, countBuf[:]); err != nil {
			return Group{}, false, err
		}
		return Group{}, false, nil
	}
	if tag != GroupOperation && tag != GroupPrinter {
		return Group{}, false, ErrBadTag
	}
	var countBuf [2]byte
	if _, err := io.ReadFull(fr.r, countBuf[:]); err != nil {
		return Group{}, false, ErrShortRead
	}
	count := binary.LittleEndian.Uint16(countBuf[:])
	attrs := make(map[string]string, count)
	for i := uint16(0); i < count; i++ {
		k, err := readString(fr.r)
		if err != nil {
			return Group{}, false, err
		}
		v, err := readString(fr.r)
		if err != nil {
			return Group{}, false, err
		}
		attrs[k] = v
	}
	return Group{Tag: tag, Attributes: attrs}, true, nil
}

func readString(r *bufio.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", ErrShortRead
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrShortRead
	}
	return string(b), nil
}
