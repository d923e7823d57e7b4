package solana

import (
	"encoding/binary"
	"fmt"
)

// ComputeBudgetProgram is the compute-budget program address.
//
// The codec below builds and parses compute-budget instruction payloads
// for assembling our own transactions (priority fees on direct chain
// submission). The venue path returns fully built transactions that must
// be forwarded byte-identical apart from the signature, so nothing in
// that path calls it.
const ComputeBudgetProgram = "ComputeBudget111111111111111111111111111111"

// Compute-budget instruction discriminators.
const (
	ComputeUnitLimitDiscriminator byte = 2
	ComputeUnitPriceDiscriminator byte = 3
)

// Encoded instruction sizes: 1-byte discriminator plus the little-endian
// numeric payload.
const (
	computeUnitLimitLen = 1 + 4
	computeUnitPriceLen = 1 + 8
)

// EncodeComputeUnitLimit encodes a SetComputeUnitLimit instruction payload:
// discriminator 2 followed by the unit limit as little-endian u32.
func EncodeComputeUnitLimit(units uint32) []byte {
	buf := make([]byte, computeUnitLimitLen)
	buf[0] = ComputeUnitLimitDiscriminator
	binary.LittleEndian.PutUint32(buf[1:], units)
	return buf
}

// EncodeComputeUnitPrice encodes a SetComputeUnitPrice instruction payload:
// discriminator 3 followed by the per-unit price in micro-lamports as
// little-endian u64.
func EncodeComputeUnitPrice(microLamports uint64) []byte {
	buf := make([]byte, computeUnitPriceLen)
	buf[0] = ComputeUnitPriceDiscriminator
	binary.LittleEndian.PutUint64(buf[1:], microLamports)
	return buf
}

// DecodeComputeUnitLimit parses a SetComputeUnitLimit instruction payload.
func DecodeComputeUnitLimit(data []byte) (uint32, error) {
	if len(data) != computeUnitLimitLen || data[0] != ComputeUnitLimitDiscriminator {
		return 0, fmt.Errorf("not a compute-unit-limit instruction")
	}
	return binary.LittleEndian.Uint32(data[1:]), nil
}

// DecodeComputeUnitPrice parses a SetComputeUnitPrice instruction payload.
func DecodeComputeUnitPrice(data []byte) (uint64, error) {
	if len(data) != computeUnitPriceLen || data[0] != ComputeUnitPriceDiscriminator {
		return 0, fmt.Errorf("not a compute-unit-price instruction")
	}
	return binary.LittleEndian.Uint64(data[1:]), nil
}
