package resp

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Limits constrains decode memory use and recursion depth. Zero fields are
// unlimited.
type Limits struct {
	MaxLineBytes int
	MaxBulkBytes int
	MaxArrayLen  int
	MaxDepth     int
}

func DefaultLimits() Limits {
	return Limits{
		MaxLineBytes: 64 * 1024,
		MaxBulkBytes: 512 * 1024 * 1024,
		MaxArrayLen:  1024 * 1024,
		MaxDepth:     64,
	}
}

// Decoder reads values from a Cursor.
type Decoder struct {
	cur    *Cursor
	limits Limits
}

func NewDecoder(cur *Cursor, limits Limits) *Decoder {
	return &Decoder{cur: cur, limits: limits}
}

// Decode reads exactly one complete value. Stream errors (io.EOF,
// io.ErrUnexpectedEOF, deadline errors) are returned as-is; malformed input
// is reported as ErrParse. A parse error inside an array also wraps
// ErrIncompleteFrame, since the remaining items are left unread. On error no
// partial value is returned.
func (d *Decoder) Decode() (Value, error) {
	return d.decode(0)
}

// Decode reads one value from r. Bytes buffered past the value are discarded
// with the temporary cursor, so r should hold exactly one frame or be read
// only once.
func Decode(r io.Reader) (Value, error) {
	return NewDecoder(NewCursor(r), DefaultLimits()).Decode()
}

func (d *Decoder) decode(depth int) (Value, error) {
	if d.limits.MaxDepth > 0 && depth > d.limits.MaxDepth {
		return nil, limitError("array nesting exceeds depth %d", d.limits.MaxDepth)
	}

	line, err := d.cur.readLine(d.limits.MaxLineBytes)
	if err != nil {
		if err == io.EOF && depth > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	body, err := trimCRLF(line)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, parseError("empty line")
	}

	payload := body[1:]
	switch body[0] {
	case prefixSimpleString:
		if err := checkASCII(payload); err != nil {
			return nil, fmt.Errorf("simple string: %w", err)
		}
		return SimpleString{text: string(payload)}, nil
	case prefixError:
		if err := checkASCII(payload); err != nil {
			return nil, fmt.Errorf("error: %w", err)
		}
		return Error{msg: string(payload)}, nil
	case prefixInteger:
		n, err := parseInt(payload)
		if err != nil {
			return nil, fmt.Errorf("integer: %w", err)
		}
		return Integer(n), nil
	case prefixBulkString:
		return d.decodeBulk(payload)
	case prefixArray:
		return d.decodeArray(payload, depth)
	default:
		return nil, parseError("unknown type tag %q", body[0])
	}
}

func (d *Decoder) decodeBulk(header []byte) (Value, error) {
	n, err := parseLength(header)
	if err != nil {
		return nil, fmt.Errorf("bulk string: %w", err)
	}
	if n == -1 {
		return Null{}, nil
	}
	if d.limits.MaxBulkBytes > 0 && n > int64(d.limits.MaxBulkBytes) {
		return nil, limitError("bulk string length %d exceeds %d", n, d.limits.MaxBulkBytes)
	}
	if n > math.MaxInt-2 {
		return nil, limitError("bulk string length %d is not addressable", n)
	}
	raw, err := d.cur.readN(int(n) + 2)
	if err != nil {
		return nil, err
	}
	if raw[n] != '\r' || raw[n+1] != '\n' {
		return nil, parseError("bulk string not terminated by CRLF")
	}
	out := make(BulkString, n)
	copy(out, raw[:n])
	return out, nil
}

func (d *Decoder) decodeArray(header []byte, depth int) (Value, error) {
	n, err := parseLength(header)
	if err != nil {
		return nil, fmt.Errorf("array: %w", err)
	}
	if n == -1 {
		return Null{}, nil
	}
	if d.limits.MaxArrayLen > 0 && n > int64(d.limits.MaxArrayLen) {
		return nil, limitError("array length %d exceeds %d", n, d.limits.MaxArrayLen)
	}
	arr := &Array{items: make([]Value, 0, min(n, 64))}
	for i := range n {
		item, err := d.decode(depth + 1)
		if err != nil {
			if errors.Is(err, ErrParse) && !errors.Is(err, ErrIncompleteFrame) {
				return nil, fmt.Errorf("%w: array item %d of %d: %w", ErrIncompleteFrame, i, n, err)
			}
			return nil, err
		}
		arr.items = append(arr.items, item)
	}
	return arr, nil
}

func trimCRLF(line []byte) ([]byte, error) {
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, parseError("line must end with CRLF")
	}
	return line[:len(line)-2], nil
}

func checkASCII(b []byte) error {
	for i, c := range b {
		if c > 0x7f {
			return parseError("non-ascii byte 0x%02x at %d", c, i)
		}
		if c == '\r' {
			return parseError("stray CR at %d", i)
		}
	}
	return nil
}

func parseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, parseError("empty number")
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, parseError("invalid number %q", b)
	}
	return n, nil
}

func parseLength(b []byte) (int64, error) {
	n, err := parseInt(b)
	if err != nil {
		return 0, err
	}
	if n < -1 {
		return 0, parseError("length %d below -1", n)
	}
	return n, nil
}

func parseError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

func limitError(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrParse, ErrLimitExceeded, fmt.Sprintf(format, args...))
}
