package resp

import (
	"io"
	"strconv"
)

const (
	prefixSimpleString = '+'
	prefixError        = '-'
	prefixInteger      = ':'
	prefixBulkString   = '$'
	prefixArray        = '*'
)

var nullBulkString = []byte("$-1\r\n")

// Encode returns the wire form of v.
func Encode(v Value) []byte {
	return AppendValue(nil, v)
}

// AppendValue appends the wire form of v to dst.
func AppendValue(dst []byte, v Value) []byte {
	switch v := v.(type) {
	case SimpleString:
		dst = append(dst, prefixSimpleString)
		dst = append(dst, v.text...)
		return append(dst, '\r', '\n')
	case Error:
		dst = append(dst, prefixError)
		dst = append(dst, v.msg...)
		return append(dst, '\r', '\n')
	case Integer:
		dst = append(dst, prefixInteger)
		dst = strconv.AppendInt(dst, int64(v), 10)
		return append(dst, '\r', '\n')
	case BulkString:
		dst = append(dst, prefixBulkString)
		dst = strconv.AppendInt(dst, int64(len(v)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, v...)
		return append(dst, '\r', '\n')
	case *Array:
		if v == nil {
			return append(dst, nullBulkString...)
		}
		dst = append(dst, prefixArray)
		dst = strconv.AppendInt(dst, int64(v.Len()), 10)
		dst = append(dst, '\r', '\n')
		for _, item := range v.items {
			dst = AppendValue(dst, item)
		}
		return dst
	default:
		// Null, and a nil interface or *Array, encode as the nil bulk string.
		return append(dst, nullBulkString...)
	}
}

// WriteValue encodes v and writes it to w in a single Write call.
func WriteValue(w io.Writer, v Value) error {
	_, err := w.Write(Encode(v))
	return err
}
