package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// maxFrameLen bounds a single frame so a corrupt or hostile length
// prefix can never make a reader allocate an unbounded buffer.
const maxFrameLen = 16 << 20 // 16 MiB

var (
	encMode, _ = cbor.CanonicalEncOptions().EncMode()
	decMode, _ = cbor.DecOptions{}.DecMode()
)

// Marshal CBOR-encodes v without a length prefix, for values nested
// inside an already-framed envelope (e.g. EventBody.Serialized).
func Marshal(v any) ([]byte, error) {
	body, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	return body, nil
}

// Encode CBOR-encodes v and prefixes it with its big-endian uint32
// length, producing one self-delimited frame.
func Encode(v any) ([]byte, error) {
	body, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	if len(body) > maxFrameLen {
		return nil, fmt.Errorf("wire: encoded frame too large: %d bytes", len(body))
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// WriteFrame encodes v and writes the resulting frame to w.
func WriteFrame(w io.Writer, v any) error {
	buf, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r and decodes it into
// v (typically a pointer to Request or Response).
func ReadFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return fmt.Errorf("wire: frame length %d exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	if err := decMode.Unmarshal(body, v); err != nil {
		return fmt.Errorf("wire: decode: %w", err)
	}
	return nil
}

// Decoder incrementally frames an arbitrary byte stream: Feed appends
// newly-read bytes, and Next pops one fully-buffered frame at a time.
// It exists for pkg/ioloop's goroutine-per-connection reader, which
// drains a socket in whatever chunks the kernel hands back and must
// reassemble frames that span more than one read.
type Decoder struct {
	buf []byte
}

// Feed appends newly-read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next pops and returns the next complete frame's body, if the buffer
// holds one. ok is false when more bytes are needed.
func (d *Decoder) Next() (body []byte, ok bool, err error) {
	if len(d.buf) < 4 {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(d.buf[:4])
	if n > maxFrameLen {
		return nil, false, fmt.Errorf("wire: frame length %d exceeds limit", n)
	}
	total := 4 + int(n)
	if len(d.buf) < total {
		return nil, false, nil
	}
	body = make([]byte, n)
	copy(body, d.buf[4:total])
	d.buf = d.buf[total:]
	return body, true, nil
}

// Unmarshal decodes a frame body (as returned by Decoder.Next) into v.
func Unmarshal(body []byte, v any) error {
	return decMode.Unmarshal(body, v)
}
