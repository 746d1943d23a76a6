package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const publicKeyLength = 32

// Account is the ledger's unit of storage: a lamport balance, the program
// that owns it and the opaque data that program keeps in it. An account with
// zero lamports and no data does not exist.
type Account struct {
	Lamports uint64           `json:"lamports"`
	Owner    solana.PublicKey `json:"owner"`
	Data     []byte           `json:"data"`
}

// NewSystemAccount returns a wallet account holding the given balance.
func NewSystemAccount(lamports uint64) *Account {
	return &Account{Lamports: lamports, Owner: solana.SystemProgramID}
}

// Clone returns a deep copy of the account so callers can mutate the copy
// without affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Data = append([]byte(nil), a.Data...)
	return &clone
}

// Empty reports whether the account holds neither lamports nor data.
func (a *Account) Empty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0)
}

// MarshalWithEncoder writes the account as lamports(u64) | owner(32) |
// data_len(u32) | data.
func (a Account) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint64(a.Lamports, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteBytes(a.Owner[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint32(uint32(len(a.Data)), binary.LittleEndian); err != nil {
		return err
	}
	return encoder.WriteBytes(a.Data, false)
}

// UnmarshalWithDecoder reads the layout written by MarshalWithEncoder.
func (a *Account) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	lamports, err := decoder.ReadUint64(binary.LittleEndian)
	if err != nil {
		return err
	}
	owner, err := decoder.ReadNBytes(publicKeyLength)
	if err != nil {
		return err
	}
	size, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil {
		return err
	}
	data, err := decoder.ReadNBytes(int(size))
	if err != nil {
		return err
	}
	a.Lamports = lamports
	a.Owner = solana.PublicKeyFromBytes(owner)
	a.Data = append([]byte(nil), data...)
	return nil
}

// EncodeAccount serialises the account for storage.
func EncodeAccount(a *Account) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("types: nil account")
	}
	var buf bytes.Buffer
	if err := a.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeAccount parses a stored account.
func DecodeAccount(raw []byte) (*Account, error) {
	acc := new(Account)
	if err := acc.UnmarshalWithDecoder(bin.NewBorshDecoder(raw)); err != nil {
		return nil, fmt.Errorf("types: decode account: %w", err)
	}
	return acc, nil
}
