package models

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Wire format: every message starts with a one-byte type tag, then its
// fields in declared order. Each field is length-prefixed with an 8-byte
// big-endian size; integers travel as canonical decimal strings; sequences
// carry an explicit element count.

// Message type tags.
const (
	TypeSecureRecord         byte = 1
	TypeClientHello          byte = 2
	TypeServerHello          byte = 3
	TypeRegisterRequest      byte = 4
	TypeRegisterResponse     byte = 5
	TypeBallotCipher         byte = 6
	TypeBallotProof          byte = 7
	TypeVoteSubmission       byte = 8
	TypeVoteRow              byte = 9
	TypePartialDecryptionRow byte = 12
)

type wireWriter struct {
	buf []byte
}

func newWireWriter(tag byte) *wireWriter {
	return &wireWriter{buf: []byte{tag}}
}

func (w *wireWriter) putBytes(b []byte) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(b)))
	w.buf = append(w.buf, size[:]...)
	w.buf = append(w.buf, b...)
}

func (w *wireWriter) putString(s string) {
	w.putBytes([]byte(s))
}

func (w *wireWriter) putInt(i *big.Int) {
	if i == nil {
		i = new(big.Int)
	}
	w.putBytes([]byte(i.Text(10)))
}

func (w *wireWriter) putCount(n int) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(n))
	w.buf = append(w.buf, size[:]...)
}

func (w *wireWriter) bytes() []byte {
	return w.buf
}

type wireReader struct {
	data []byte
	off  int
}

func newWireReader(data []byte, tag byte) (*wireReader, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrProtocol)
	}
	if data[0] != tag {
		return nil, fmt.Errorf("%w: unexpected type tag %d, want %d", ErrProtocol, data[0], tag)
	}
	return &wireReader{data: data, off: 1}, nil
}

func (r *wireReader) getBytes() ([]byte, error) {
	if r.off+8 > len(r.data) {
		return nil, fmt.Errorf("%w: truncated size prefix", ErrProtocol)
	}
	size := binary.BigEndian.Uint64(r.data[r.off : r.off+8])
	r.off += 8
	if size > uint64(len(r.data)-r.off) {
		return nil, fmt.Errorf("%w: truncated field", ErrProtocol)
	}
	b := r.data[r.off : r.off+int(size)]
	r.off += int(size)
	return b, nil
}

func (r *wireReader) getString() (string, error) {
	b, err := r.getBytes()
	return string(b), err
}

func (r *wireReader) getInt() (*big.Int, error) {
	b, err := r.getBytes()
	if err != nil {
		return nil, err
	}
	i, ok := new(big.Int).SetString(string(b), 10)
	if !ok {
		return nil, fmt.Errorf("%w: malformed integer field", ErrProtocol)
	}
	return i, nil
}

func (r *wireReader) getCount() (int, error) {
	if r.off+8 > len(r.data) {
		return 0, fmt.Errorf("%w: truncated count", ErrProtocol)
	}
	n := binary.BigEndian.Uint64(r.data[r.off : r.off+8])
	r.off += 8
	// Every element takes at least a size prefix, so bound the count by
	// the remaining bytes to refuse absurd allocations.
	if n > uint64(len(r.data)-r.off) {
		return 0, fmt.Errorf("%w: sequence count exceeds buffer", ErrProtocol)
	}
	return int(n), nil
}

func (r *wireReader) finish() error {
	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrProtocol, len(r.data)-r.off)
	}
	return nil
}
