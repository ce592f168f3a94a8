package serializer

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

const checksumLength = 4

// Base58Encode encodes byte array to base58 string.
func Base58Encode(input []byte) []byte {
	encode := base58.Encode(input)

	return []byte(encode)
}

// Base58Decode decodes base58 string to byte array.
func Base58Decode(input []byte) ([]byte, error) {
	decode, err := base58.Decode(string(input[:]))
	if err != nil {
		return nil, err
	}

	return decode, nil
}

// Base58Address encodes a versioned payload with a double sha256 checksum suffix
// in to a base58 address string.
func Base58Address(version byte, payload []byte) string {
	vers := append([]byte{version}, payload...)
	full := append(vers, checksum(vers)...)
	return string(Base58Encode(full))
}

func checksum(payload []byte) []byte {
	firstHash := sha256.Sum256(payload)
	secondHash := sha256.Sum256(firstHash[:])

	return secondHash[:checksumLength]
}
