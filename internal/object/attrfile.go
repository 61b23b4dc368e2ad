package object

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Attribute sidecar record layout:
//
//	<name-len:u32><name><value-len:u32><value><origin:u8>
//
// repeated until EOF. Byte order is big-endian throughout, matching the
// explicit byte-offset style of a manual marshal rather than reflection.

// WriteAttrFile serializes every attribute in set to w, in insertion order.
func WriteAttrFile(w io.Writer, set *AttrSet) error {
	bw := bufio.NewWriter(w)
	var lenBuf [4]byte

	var writeErr error
	set.Range(func(a Attr) bool {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(a.Name)))
		if _, writeErr = bw.Write(lenBuf[:]); writeErr != nil {
			return false
		}
		if _, writeErr = bw.WriteString(a.Name); writeErr != nil {
			return false
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(a.Value)))
		if _, writeErr = bw.Write(lenBuf[:]); writeErr != nil {
			return false
		}
		if _, writeErr = bw.Write(a.Value); writeErr != nil {
			return false
		}
		if writeErr = bw.WriteByte(byte(a.Origin)); writeErr != nil {
			return false
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}
	return bw.Flush()
}

// ReadAttrFile deserializes an attribute sidecar from r into a new AttrSet.
// Attributes read this way are always tagged AttrOriginal, regardless of
// the origin byte stored on disk.
func ReadAttrFile(r io.Reader) (*AttrSet, error) {
	br := bufio.NewReader(r)
	set := NewAttrSet()

	for {
		nameLen, err := readUint32(br)
		if err == io.EOF {
			return set, nil
		}
		if err != nil {
			return nil, err
		}

		name := make([]byte, nameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			return nil, err
		}

		valLen, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		value := make([]byte, valLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return nil, err
		}

		if _, err := br.ReadByte(); err != nil {
			return nil, err
		}

		set.Set(string(name), value, AttrOriginal)
	}
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
