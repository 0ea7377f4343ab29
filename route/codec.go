// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package route

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// Each encoded route is prefixed by its length (4 bytes, big endian).
// The body contains, in order: origin (1), peer (4), preference (4),
// prefix length (1), address length (1) and address, next-hop length
// (2) and next-hop, then AS path, AS set and communities, each as a
// 2-byte count followed by the 4-byte values.
const headerLen = 4

var (
	// ErrTruncated is returned when a buffer ends in the middle of a route.
	ErrTruncated = errors.New("truncated route")
	// ErrInvalidRoute is returned when a route cannot be decoded.
	ErrInvalidRoute = errors.New("invalid route")
)

// EncodedLen returns the number of bytes needed to encode the route.
func (e Entry) EncodedLen() int {
	return headerLen + 1 + 4 + 4 + 1 + 1 + len(e.Prefix.Addr().AsSlice()) +
		2 + len(e.NextHop) +
		2 + 4*len(e.ASPath) +
		2 + 4*len(e.ASSet) +
		2 + 8*len(e.Communities)
}

// Encode writes the route at the beginning of the buffer and returns
// the number of bytes written. When the buffer is too small, nothing
// is written and -1 is returned: the caller is expected to flush the
// buffer and try again.
func (e Entry) Encode(buf []byte) int {
	n := e.EncodedLen()
	if len(buf) < n {
		return -1
	}
	be := binary.BigEndian
	be.PutUint32(buf, uint32(n-headerLen))
	off := headerLen
	buf[off] = byte(e.Origin)
	be.PutUint32(buf[off+1:], e.Peer)
	be.PutUint32(buf[off+5:], e.Preference)
	buf[off+9] = byte(e.Prefix.Bits())
	addr := e.Prefix.Addr().AsSlice()
	buf[off+10] = byte(len(addr))
	off += 11
	off += copy(buf[off:], addr)
	be.PutUint16(buf[off:], uint16(len(e.NextHop)))
	off += 2
	off += copy(buf[off:], e.NextHop)
	for _, asns := range [][]uint32{e.ASPath, e.ASSet} {
		be.PutUint16(buf[off:], uint16(len(asns)))
		off += 2
		for _, asn := range asns {
			be.PutUint32(buf[off:], asn)
			off += 4
		}
	}
	be.PutUint16(buf[off:], uint16(len(e.Communities)))
	off += 2
	for _, c := range e.Communities {
		be.PutUint32(buf[off:], c.ASN)
		be.PutUint32(buf[off+4:], c.Value)
		off += 8
	}
	return off
}

// decoder reads fields from a route body while tracking errors.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = ErrTruncated
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) asns() []uint32 {
	count := int(d.u16())
	if count == 0 {
		return nil
	}
	asns := make([]uint32, 0, count)
	for range count {
		asns = append(asns, d.u32())
	}
	return asns
}

// Decode decodes the route at the beginning of the buffer. It returns
// the route and the number of bytes consumed.
func Decode(buf []byte) (Entry, int, error) {
	if len(buf) < headerLen {
		return Entry{}, 0, ErrTruncated
	}
	length := int(binary.BigEndian.Uint32(buf))
	if len(buf) < headerLen+length {
		return Entry{}, 0, ErrTruncated
	}
	d := decoder{buf: buf[headerLen : headerLen+length]}
	var e Entry
	e.Origin = Origin(d.u8())
	e.Peer = d.u32()
	e.Preference = d.u32()
	bits := int(d.u8())
	addrBytes := d.take(int(d.u8()))
	e.NextHop = string(d.take(int(d.u16())))
	e.ASPath = d.asns()
	e.ASSet = d.asns()
	if count := int(d.u16()); count > 0 {
		e.Communities = make([]Community, 0, count)
		for range count {
			e.Communities = append(e.Communities, Community{d.u32(), d.u32()})
		}
	}
	if d.err != nil {
		return Entry{}, 0, d.err
	}
	addr, ok := netip.AddrFromSlice(addrBytes)
	if !ok {
		return Entry{}, 0, fmt.Errorf("%w: bad address length %d", ErrInvalidRoute, len(addrBytes))
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("%w: %w", ErrInvalidRoute, err)
	}
	e.Prefix = prefix
	return e, headerLen + length, nil
}

// DecodeAll decodes all the routes contained in a buffer.
func DecodeAll(buf []byte) ([]Entry, error) {
	var routes []Entry
	for len(buf) > 0 {
		e, n, err := Decode(buf)
		if err != nil {
			return routes, err
		}
		routes = append(routes, e)
		buf = buf[n:]
	}
	return routes, nil
}

// EncodeBatches encodes routes into buffers holding at most batchSize
// routes and bufferSize bytes each. Each buffer is handed to emit,
// with done set for the last one. An empty set of routes is emitted
// as a single empty buffer. A route larger than bufferSize gets a
// buffer of its own.
func EncodeBatches(routes []Entry, batchSize, bufferSize int, emit func(buf []byte, done bool)) {
	if len(routes) == 0 {
		emit(nil, true)
		return
	}
	remaining := 0
	for _, r := range routes {
		remaining += r.EncodedLen()
	}
	newBuffer := func() []byte {
		return make([]byte, min(bufferSize, remaining))
	}

	buf := newBuffer()
	offset, count := 0, 0
	for i, r := range routes {
		n := r.Encode(buf[offset:])
		if n < 0 {
			if offset > 0 {
				emit(buf[:offset], false)
				buf = newBuffer()
				offset, count = 0, 0
				n = r.Encode(buf)
			}
			if n < 0 {
				big := make([]byte, r.EncodedLen())
				n = r.Encode(big)
				remaining -= n
				emit(big, i == len(routes)-1)
				continue
			}
		}
		offset += n
		remaining -= n
		count++
		if count >= batchSize || i == len(routes)-1 {
			emit(buf[:offset], i == len(routes)-1)
			if i < len(routes)-1 {
				buf = newBuffer()
			}
			offset, count = 0, 0
		}
	}
}
