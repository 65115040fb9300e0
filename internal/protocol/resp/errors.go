package resp

import "errors"

var (
	ErrParse           = errors.New("resp: parsing error")
	ErrLimitExceeded   = errors.New("resp: limit exceeded")
	// ErrIncompleteFrame marks a parse error raised inside an array, where
	// the rest of the array is still unread.
	ErrIncompleteFrame = errors.New("resp: incomplete frame")
	ErrInvalidArgument = errors.New("resp: invalid argument")
)
