// Package hashing provides the digests and the solidity-compatible byte packing
// that every signed artefact is built from.
package hashing

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"golang.org/x/crypto/sha3"

	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

// Keccak256 hashes the concatenation of data with legacy (pre-NIST) Keccak-256.
func Keccak256(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) common.Hash {
	return common.Hash(sha256.Sum256(data))
}

// SolidityKeccak256 hashes the packed encoding of values.
func SolidityKeccak256(types []string, values []any) (common.Hash, error) {
	packed, err := PackSolidity(types, values)
	if err != nil {
		return common.Hash{}, err
	}
	return Keccak256(packed), nil
}

// PackSolidity produces the non-standard packed encoding used by on-chain
// abi.encodePacked: fixed-size values are right-aligned to their own width and
// strings are raw UTF-8 without a length prefix.
//
// Supported types are address, string, bytes32 and uint8 through uint256.
func PackSolidity(types []string, values []any) ([]byte, error) {
	if len(types) != len(values) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "packed types and values differ in length")
	}
	var out []byte
	for i, typ := range types {
		enc, err := packOne(typ, values[i])
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("pack argument %d (%s)", i, typ))
		}
		out = append(out, enc...)
	}
	return out, nil
}

func packOne(typ string, v any) ([]byte, error) {
	switch {
	case typ == "address":
		addr, err := toAddress(v)
		if err != nil {
			return nil, err
		}
		return addr.Bytes(), nil
	case typ == "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return []byte(s), nil
	case typ == "bytes32":
		h, err := toBytes32(v)
		if err != nil {
			return nil, err
		}
		return h.Bytes(), nil
	case strings.HasPrefix(typ, "uint"):
		bits := 256
		if rest := strings.TrimPrefix(typ, "uint"); rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil || n <= 0 || n > 256 || n%8 != 0 {
				return nil, fmt.Errorf("unsupported type %q", typ)
			}
			bits = n
		}
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if n.Sign() < 0 || n.BitLen() > bits {
			return nil, fmt.Errorf("value out of range for %s", typ)
		}
		return math.PaddedBigBytes(n, bits/8), nil
	default:
		return nil, fmt.Errorf("unsupported type %q", typ)
	}
}

func toAddress(v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case domain.SubjectID:
		return a.Address(), nil
	case [20]byte:
		return common.Address(a), nil
	case string:
		id, err := domain.ParseSubjectID(a)
		if err != nil {
			return common.Address{}, err
		}
		return id.Address(), nil
	default:
		return common.Address{}, fmt.Errorf("expected address, got %T", v)
	}
}

func toBytes32(v any) (common.Hash, error) {
	switch h := v.(type) {
	case common.Hash:
		return h, nil
	case [32]byte:
		return common.Hash(h), nil
	case []byte:
		if len(h) != common.HashLength {
			return common.Hash{}, fmt.Errorf("bytes32 needs 32 bytes, got %d", len(h))
		}
		return common.BytesToHash(h), nil
	case string:
		return Bytes32FromHex(h)
	default:
		return common.Hash{}, fmt.Errorf("expected bytes32, got %T", v)
	}
}

func toBig(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return n, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	default:
		return nil, fmt.Errorf("expected unsigned integer, got %T", v)
	}
}

// EncodeHex returns the 0x-prefixed lowercase hex form of b.
func EncodeHex(b []byte) string {
	return hexutil.Encode(b)
}

// DecodeHex requires a 0x prefix and an even number of digits.
func DecodeHex(s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed hex string")
	}
	return b, nil
}

// Bytes32FromHex decodes a 0x-prefixed 32-byte value.
func Bytes32FromHex(s string) (common.Hash, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, dErrors.New(dErrors.CodeInvalidInput, "expected 32 bytes")
	}
	return common.BytesToHash(b), nil
}
