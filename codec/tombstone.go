package codec

import "bytes"

// TombstoneSentinel is the reserved wire form for "known absent": the data
// source was asked and returned nothing. It is stored verbatim in both tiers
// and translated back to the known-absent state on read.
//
// The structured codecs never emit it for a legal value: JSON output for a
// string would be quoted and msgpack/CBOR/protobuf framing never matches the
// token. The raw codecs (Bytes, String) pass payloads through unchanged, so
// they emit it when given the token itself. Custom codecs must not emit it
// for any legal value.
var TombstoneSentinel = []byte("@@NULL@@")

// IsTombstone reports whether b is the reserved tombstone sentinel.
func IsTombstone(b []byte) bool {
	return bytes.Equal(b, TombstoneSentinel)
}
