// Package resp owns the RESP2 value model and its wire codec.
//
// Ownership boundary:
// - closed Value variant set (simple string, error, integer, bulk string, array, null)
// - deterministic encoding
// - streaming, rewindable decoding with limits
package resp
