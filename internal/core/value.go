package core

import "encoding/binary"

// Endian tags the byte order of a copied multi-byte value.
type Endian int

const (
	// Big is network byte order. Zero-copy views into packet data are
	// always big endian.
	Big Endian = iota
	// Little marks host-produced values copied into the slot.
	Little
)

// Value is the typed byte container behind one parameter slot. It holds
// either a zero-copy view into the packet buffer or an owned copy with
// an explicit endianness tag.
type Value struct {
	view   []byte
	buf    []byte
	owned  bool
	endian Endian
}

// Set stores a zero-copy reference. The view dies with the decode pass.
func (v *Value) Set(b []byte) {
	v.view = b
	v.owned = false
	v.endian = Big
}

// Cpy stores an owned copy of b tagged with the given byte order. The
// backing buffer is reused across packets.
func (v *Value) Cpy(b []byte, e Endian) {
	v.buf = append(v.buf[:0], b...)
	v.view = v.buf
	v.owned = true
	v.endian = e
}

// PutUint32 stores an owned 32-bit integer in the given byte order.
func (v *Value) PutUint32(x uint32, e Endian) {
	v.buf = v.buf[:0]
	if e == Little {
		v.buf = binary.LittleEndian.AppendUint32(v.buf, x)
	} else {
		v.buf = binary.BigEndian.AppendUint32(v.buf, x)
	}
	v.view = v.buf
	v.owned = true
	v.endian = e
}

// PutUint64 stores an owned 64-bit integer in the given byte order.
func (v *Value) PutUint64(x uint64, e Endian) {
	v.buf = v.buf[:0]
	if e == Little {
		v.buf = binary.LittleEndian.AppendUint64(v.buf, x)
	} else {
		v.buf = binary.BigEndian.AppendUint64(v.buf, x)
	}
	v.view = v.buf
	v.owned = true
	v.endian = e
}

// Bytes returns the stored bytes, nil when the slot is empty.
func (v *Value) Bytes() []byte { return v.view }

// Len returns the stored length.
func (v *Value) Len() int { return len(v.view) }

// Endian returns the byte-order tag of the stored bytes.
func (v *Value) Endian() Endian { return v.endian }

// Uint decodes the stored bytes as an unsigned integer of their own
// width (1, 2, 4 or 8 bytes), honoring the endianness tag. The second
// return is false for any other width.
func (v *Value) Uint() (uint64, bool) {
	b := v.view
	switch len(b) {
	case 1:
		return uint64(b[0]), true
	case 2:
		if v.endian == Little {
			return uint64(binary.LittleEndian.Uint16(b)), true
		}
		return uint64(binary.BigEndian.Uint16(b)), true
	case 4:
		if v.endian == Little {
			return uint64(binary.LittleEndian.Uint32(b)), true
		}
		return uint64(binary.BigEndian.Uint32(b)), true
	case 8:
		if v.endian == Little {
			return binary.LittleEndian.Uint64(b), true
		}
		return binary.BigEndian.Uint64(b), true
	}
	return 0, false
}

func (v *Value) clear() {
	v.view = nil
	v.owned = false
	v.endian = Big
}
