// Package quickxorhash implements QuickXorHash, the content hash OneDrive
// reports for every file as file.hashes.quickXorHash.
//
// Each input byte is XORed into a 160-bit circular register at a bit offset
// that advances by 11 per byte. The digest is the register in little-endian
// byte order with the total input length XORed into its last 8 bytes.
package quickxorhash

import (
	"encoding/base64"
	"encoding/binary"
	"hash"
)

const (
	// Size is the length, in bytes, of a digest.
	Size = 20

	// BlockSize is the preferred write size.
	BlockSize = 64

	shift       = 11
	widthInBits = Size * 8
)

type digest struct {
	reg    [Size]byte
	offset int // bit position for the next byte
	length uint64
}

// New returns a hash.Hash computing QuickXorHash.
func New() hash.Hash {
	return &digest{}
}

// Sum returns the digest of data.
func Sum(data []byte) [Size]byte {
	var d digest

	_, _ = d.Write(data)

	var out [Size]byte
	copy(out[:], d.Sum(nil))

	return out
}

// Encode returns the base64 form used by the drive API.
func Encode(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

// Write never fails.
func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		idx, bit := d.offset/8, uint(d.offset%8)

		d.reg[idx] ^= b << bit
		if bit != 0 {
			d.reg[(idx+1)%Size] ^= b >> (8 - bit)
		}

		d.offset = (d.offset + shift) % widthInBits
	}

	d.length += uint64(len(p))

	return len(p), nil
}

// Sum appends the digest to b without changing the hash state.
func (d *digest) Sum(b []byte) []byte {
	out := d.reg

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], d.length)

	for i, v := range n {
		out[Size-len(n)+i] ^= v
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() {
	*d = digest{}
}

func (d *digest) Size() int {
	return Size
}

func (d *digest) BlockSize() int {
	return BlockSize
}
