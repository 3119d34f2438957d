// Package framing implements the substrate's on-the-wire envelope:
// opcode selection, a length-prefixed field stream, and the result flag
// separating a successful reply from a guarantor-signed error (spec.md
// §4.4, §6). It also supplies the operation-table glue (spec.md §9's
// "Macros/glue") that binds a typed request/response pair to an opcode
// without code generation: see Op and NewOp in op.go.
//
// Grounded on gnunet-go's message package (src/gnunet/message/marshal.go,
// message.go): there, every message on the wire begins with a fixed
// header carrying a u16 size and a u16 type tag, read once and used to
// look up a factory for the rest of the message. Framing generalizes that
// same shape — a short fixed header naming "what comes next", followed by
// length-prefixed payloads — to the opcode, the per-field lengths, and the
// result flag spec.md §6 defines.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFieldSize bounds how large a single field's declared length
// may be before ReadField refuses it outright, so a malicious or corrupt
// length prefix cannot force an unbounded allocation (spec.md §4.4's
// "receivers that know an upper bound may refuse oversized streams").
const DefaultMaxFieldSize = 64 << 20 // 64 MiB

// Errors returned by this package (spec.md §7's ProtocolError family).
var (
	ErrFieldTooLarge = errors.New("framing: field exceeds maximum size")
	ErrProtocol      = errors.New("framing: protocol error")
	ErrWrongGuarantor = errors.New("framing: response guarantor does not match the called peer")
)

// HandlerError is an application-level error returned by an operation
// handler, surfaced to the caller verbatim as the ACK|ERR payload's
// message (spec.md §7: "the textual form is exactly the server-provided
// string when the failure originated there").
type HandlerError struct {
	Message string
}

func (e *HandlerError) Error() string { return e.Message }

// OpCode identifies one operation in the RPC catalog. Framing uses the
// enum-tag form spec.md §9 recommends over the legacy single-byte
// bitflag: a big-endian u16 on the wire, so up to 65,536 operations
// instead of the eight bits of a one-byte flag.
type OpCode uint16

// WriteOpCode writes op as a big-endian u16, the first bytes on every
// new stream (spec.md §4.4).
func WriteOpCode(w io.Writer, op OpCode) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(op))
	_, err := w.Write(buf[:])
	return err
}

// ReadOpCode reads the opcode a new stream begins with.
func ReadOpCode(r io.Reader) (OpCode, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("framing: read opcode: %w", err)
	}
	return OpCode(binary.BigEndian.Uint16(buf[:])), nil
}

// ResultFlag is the 8-bit bitset heading every response (spec.md §3).
type ResultFlag uint8

const (
	flagAck ResultFlag = 0x80
	flagOK  ResultFlag = 0x40
	flagErr ResultFlag = 0x20

	// AckOK marks a successful response: a typed response field stream
	// follows.
	AckOK ResultFlag = flagAck | flagOK
	// AckErr marks a failed response: a single guarantor-signed error
	// string field follows.
	AckErr ResultFlag = flagAck | flagErr
)

// Valid reports whether f is one of the two result flags observed in
// traffic; any other top-bit-set value is a fatal framing error
// (spec.md §3).
func (f ResultFlag) Valid() bool {
	return f == AckOK || f == AckErr
}

// WriteResult writes the single result-flag byte heading a response.
func WriteResult(w io.Writer, f ResultFlag) error {
	_, err := w.Write([]byte{byte(f)})
	return err
}

// ReadResult reads the result-flag byte and validates it.
func ReadResult(r io.Reader) (ResultFlag, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("framing: read result flag: %w", err)
	}
	f := ResultFlag(buf[0])
	if !f.Valid() {
		return f, fmt.Errorf("%w: result flag %#x", ErrProtocol, buf[0])
	}
	return f, nil
}

// WriteField writes data preceded by its big-endian u64 length, the
// shape every envelope and field takes on the wire (spec.md §6).
func WriteField(w io.Writer, data []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadField reads a length-prefixed field, refusing one declared larger
// than DefaultMaxFieldSize.
func ReadField(r io.Reader) ([]byte, error) {
	return ReadFieldMax(r, DefaultMaxFieldSize)
}

// ReadFieldMax reads a length-prefixed field, refusing one declared
// larger than max bytes.
func ReadFieldMax(r io.Reader, max uint64) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("framing: read field length: %w", err)
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	if n > max {
		return nil, fmt.Errorf("%w: declared %d bytes, max %d", ErrFieldTooLarge, n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("framing: read field body: %w", err)
	}
	return buf, nil
}

// LazyField exposes a large length-prefixed field (spec.md §4.4's "Vec<u8>
// blobs") to a handler as a stream instead of a fully buffered slice: the
// handler may Read incrementally, and whatever it leaves unread must be
// Drained before the next field can be read in order off the underlying
// stream.
type LazyField struct {
	r         io.Reader
	remaining int64
}

// ReadLazyField reads a field's length prefix and returns a reader
// limited to exactly that many subsequent bytes, without buffering the
// body (spec.md §4.4's laziness requirement).
func ReadLazyField(r io.Reader) (*LazyField, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("framing: read lazy field length: %w", err)
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	return &LazyField{r: r, remaining: int64(n)}, nil
}

// Len reports how many bytes of the field remain unread.
func (lf *LazyField) Len() int64 { return lf.remaining }

func (lf *LazyField) Read(p []byte) (int, error) {
	if lf.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > lf.remaining {
		p = p[:lf.remaining]
	}
	n, err := lf.r.Read(p)
	lf.remaining -= int64(n)
	return n, err
}

// Drain discards whatever bytes of the field the handler left unread, so
// the underlying stream's field ordering is preserved for whatever comes
// next (spec.md §4.4).
func (lf *LazyField) Drain() error {
	if lf.remaining <= 0 {
		return nil
	}
	_, err := io.Copy(io.Discard, lf)
	return err
}
