/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package rowkey builds the canonical, order-preserving byte encoding of a
// primary key (partition key + optional sort key). Byte comparison of two
// encoded keys with the same partition key component always agrees with the
// sort-key ordering rule: numeric for an N sort key, lexicographic for S/B.
package rowkey

import (
	"encoding/binary"
	"fmt"

	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/shopspring/decimal"
)

const (
	tagString byte = 'S'
	tagNumber byte = 'N'
	tagBinary byte = 'B'
)

const (
	numNegative byte = 0x00
	numZero     byte = 0x01
	numPositive byte = 0x02
)

// numExpBias keeps the biased scientific exponent non-negative for any
// decimal.Decimal this store will realistically hold.
const numExpBias = int64(1) << 40

// EncodeComponent encodes a single scalar key value (the partition key, or
// the sort key) into an order-preserving byte string tagged with its type.
// Only S, N, and B are valid key attribute types (spec.md §3).
func EncodeComponent(v attrval.Value) ([]byte, error) {
	switch v.Kind() {
	case attrval.KindString:
		return append([]byte{tagString}, escape([]byte(v.AsString()))...), nil
	case attrval.KindBinary:
		return append([]byte{tagBinary}, escape(v.AsBinary())...), nil
	case attrval.KindNumber:
		return append([]byte{tagNumber}, encodeNumber(v.AsNumber())...), nil
	default:
		return nil, fmt.Errorf("rowkey: kind %s is not a valid key attribute type", v.Kind())
	}
}

// escape makes a byte string safely concatenable and order-preserving when
// followed by more encoded fields: every 0x00 becomes 0x00 0xFF, and the run
// is terminated with 0x00 0x00. Plain byte comparison of two escaped strings
// then agrees with lexicographic comparison of the originals.
func escape(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	for _, c := range b {
		if c == 0x00 {
			out = append(out, 0x00, 0xFF)
		} else {
			out = append(out, c)
		}
	}
	return append(out, 0x00, 0x00)
}

// encodeNumber produces an order-preserving encoding of a decimal number:
// a 1-byte sign marker followed by an 8-byte biased scientific exponent, the
// normalized (no trailing zero) decimal digit string, and a 0x00 terminator.
// Negative numbers have every byte of that tail bit-inverted, which reverses
// their relative order to match "more negative sorts first".
func encodeNumber(d decimal.Decimal) []byte {
	switch d.Sign() {
	case 0:
		return []byte{numZero}
	}
	neg := d.Sign() < 0
	ad := d.Abs()
	coeff := ad.Coefficient() // *big.Int, positive, no leading zeros
	exp := int64(ad.Exponent())
	digits := coeff.String()
	for len(digits) > 1 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		exp++
	}
	// value = 0.<digits> * 10^adjExp
	adjExp := exp + int64(len(digits))

	tail := make([]byte, 0, 8+len(digits)+1)
	var expBuf [8]byte
	binary.BigEndian.PutUint64(expBuf[:], uint64(adjExp+numExpBias))
	tail = append(tail, expBuf[:]...)
	tail = append(tail, digits...)
	tail = append(tail, 0x00)

	if neg {
		for i := range tail {
			tail[i] ^= 0xFF
		}
		return append([]byte{numNegative}, tail...)
	}
	return append([]byte{numPositive}, tail...)
}

// Key encodes the full primary key: partition key component, followed by the
// sort key component if the table has one. hasSortKey must match the table
// schema; a table without a sort key encodes sk as the zero Value and the
// caller must pass hasSortKey=false so it is omitted entirely.
func Key(pk attrval.Value, sk attrval.Value, hasSortKey bool) ([]byte, error) {
	pkBytes, err := EncodeComponent(pk)
	if err != nil {
		return nil, fmt.Errorf("rowkey: partition key: %w", err)
	}
	if !hasSortKey {
		return pkBytes, nil
	}
	skBytes, err := EncodeComponent(sk)
	if err != nil {
		return nil, fmt.Errorf("rowkey: sort key: %w", err)
	}
	return append(pkBytes, skBytes...), nil
}

// PartitionPrefix encodes just the partition key component, which is also
// the byte range prefix every row of that partition shares in the shard's
// ordered item index — used for Query's per-partition scan.
func PartitionPrefix(pk attrval.Value) ([]byte, error) {
	return EncodeComponent(pk)
}
