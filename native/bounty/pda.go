package bounty

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the address the bounty program is deployed at.
var DefaultProgramID = solana.MustPublicKeyFromBase58("N4tunukgDEgapkstYPKrZZLCAC59EapzrWq2d724yCp")

var (
	configSeed = []byte("config")
	bountySeed = []byte("bounty")
)

// ConfigSeeds are the derivation seeds of the ProgramConfig record.
func ConfigSeeds() [][]byte {
	return [][]byte{configSeed}
}

// BountySeeds are the derivation seeds of the bounty with the given id: the
// label followed by the id as 8 little-endian bytes.
func BountySeeds(id uint64) [][]byte {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], id)
	return [][]byte{bountySeed, le[:]}
}

// ConfigAddress derives the ProgramConfig address and its bump.
func ConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(ConfigSeeds(), programID)
}

// BountyAddress derives the address of bounty id and its bump.
func BountyAddress(programID solana.PublicKey, id uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(BountySeeds(id), programID)
}

func withBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

// verifyAddress recomputes the address from seeds and the stored bump.
func verifyAddress(programID solana.PublicKey, seeds [][]byte, bump uint8, addr solana.PublicKey) error {
	derived, err := solana.CreateProgramAddress(withBump(seeds, bump), programID)
	if err != nil {
		return fail(ErrAddressMismatch, "seeds with bump %d do not derive an address: %v", bump, err)
	}
	if !derived.Equals(addr) {
		return fail(ErrAddressMismatch, "expected %s, got %s", derived, addr)
	}
	return nil
}
