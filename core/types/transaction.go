package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	signatureLength = 64

	// MaxInstructions bounds the number of instructions in one transaction.
	MaxInstructions = 16
	// MaxAccountsPerInstruction bounds the account list of one instruction.
	MaxAccountsPerInstruction = 32
	// MaxInstructionData bounds the data payload of one instruction.
	MaxInstructionData = 1232
)

var (
	ErrUnsigned         = errors.New("transaction: missing signature")
	ErrInvalidSignature = errors.New("transaction: invalid signature")
	ErrNoInstructions   = errors.New("transaction: no instructions")
)

const (
	metaFlagSigner   byte = 1 << 0
	metaFlagWritable byte = 1 << 1
)

// AccountMeta declares an account an instruction touches and how.
type AccountMeta struct {
	PublicKey  solana.PublicKey `json:"pubkey"`
	IsSigner   bool             `json:"isSigner"`
	IsWritable bool             `json:"isWritable"`
}

// Meta is a shorthand constructor for AccountMeta.
func Meta(key solana.PublicKey, writable, signer bool) AccountMeta {
	return AccountMeta{PublicKey: key, IsWritable: writable, IsSigner: signer}
}

// Instruction invokes one program with an explicit account list.
type Instruction struct {
	ProgramID solana.PublicKey `json:"programId"`
	Accounts  []AccountMeta    `json:"accounts"`
	Data      []byte           `json:"data"`
}

// Transaction is a signed, atomically applied list of instructions. The fee
// payer is the only signer and therefore the caller identity of every
// instruction it carries.
type Transaction struct {
	FeePayer     solana.PublicKey `json:"feePayer"`
	RecentRound  uint64           `json:"recentRound"`
	Instructions []Instruction    `json:"instructions"`
	Signature    solana.Signature `json:"signature"`
}

// NewTransaction assembles an unsigned transaction.
func NewTransaction(feePayer solana.PublicKey, recentRound uint64, instructions ...Instruction) *Transaction {
	return &Transaction{FeePayer: feePayer, RecentRound: recentRound, Instructions: instructions}
}

func (tx *Transaction) encodeMessage(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(tx.FeePayer[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint64(tx.RecentRound, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteUint32(uint32(len(tx.Instructions)), binary.LittleEndian); err != nil {
		return err
	}
	for _, ix := range tx.Instructions {
		if err := encoder.WriteBytes(ix.ProgramID[:], false); err != nil {
			return err
		}
		if err := encoder.WriteUint32(uint32(len(ix.Accounts)), binary.LittleEndian); err != nil {
			return err
		}
		for _, meta := range ix.Accounts {
			if err := encoder.WriteBytes(meta.PublicKey[:], false); err != nil {
				return err
			}
			var flags byte
			if meta.IsSigner {
				flags |= metaFlagSigner
			}
			if meta.IsWritable {
				flags |= metaFlagWritable
			}
			if err := encoder.WriteUint8(flags); err != nil {
				return err
			}
		}
		if err := encoder.WriteUint32(uint32(len(ix.Data)), binary.LittleEndian); err != nil {
			return err
		}
		if err := encoder.WriteBytes(ix.Data, false); err != nil {
			return err
		}
	}
	return nil
}

// Message returns the canonical bytes covered by the signature.
func (tx *Transaction) Message() ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.encodeMessage(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash is the Keccak256 digest of the message.
func (tx *Transaction) Hash() (common.Hash, error) {
	msg, err := tx.Message()
	if err != nil {
		return common.Hash{}, err
	}
	return ethcrypto.Keccak256Hash(msg), nil
}

// Sign signs the message hash with the fee payer's key.
func (tx *Transaction) Sign(key solana.PrivateKey) error {
	if !key.PublicKey().Equals(tx.FeePayer) {
		return fmt.Errorf("transaction: signer %s is not fee payer %s", key.PublicKey(), tx.FeePayer)
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash.Bytes())
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Verify checks structural limits and the fee payer's signature.
func (tx *Transaction) Verify() error {
	if len(tx.Instructions) == 0 {
		return ErrNoInstructions
	}
	if len(tx.Instructions) > MaxInstructions {
		return fmt.Errorf("transaction: %d instructions exceeds limit %d", len(tx.Instructions), MaxInstructions)
	}
	for i, ix := range tx.Instructions {
		if len(ix.Accounts) > MaxAccountsPerInstruction {
			return fmt.Errorf("transaction: instruction %d declares too many accounts", i)
		}
		if len(ix.Data) > MaxInstructionData {
			return fmt.Errorf("transaction: instruction %d data too large", i)
		}
	}
	if tx.Signature == (solana.Signature{}) {
		return ErrUnsigned
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	if !tx.Signature.Verify(tx.FeePayer, hash.Bytes()) {
		return ErrInvalidSignature
	}
	return nil
}

// IsSigner reports whether key signed the transaction.
func (tx *Transaction) IsSigner(key solana.PublicKey) bool {
	return key.Equals(tx.FeePayer)
}

// WritableAccounts lists every account the transaction may write, fee payer
// first, without duplicates.
func (tx *Transaction) WritableAccounts() []solana.PublicKey {
	seen := map[solana.PublicKey]struct{}{tx.FeePayer: {}}
	out := []solana.PublicKey{tx.FeePayer}
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if !meta.IsWritable {
				continue
			}
			if _, ok := seen[meta.PublicKey]; ok {
				continue
			}
			seen[meta.PublicKey] = struct{}{}
			out = append(out, meta.PublicKey)
		}
	}
	return out
}

// MarshalBinary encodes signature | message for the wire.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	encoder := bin.NewBorshEncoder(&buf)
	if err := encoder.WriteBytes(tx.Signature[:], false); err != nil {
		return nil, err
	}
	if err := tx.encodeMessage(encoder); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTransaction parses the wire form produced by MarshalBinary.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	decoder := bin.NewBorshDecoder(raw)
	tx := new(Transaction)
	sig, err := decoder.ReadNBytes(signatureLength)
	if err != nil {
		return nil, fmt.Errorf("transaction: decode signature: %w", err)
	}
	copy(tx.Signature[:], sig)
	payer, err := decoder.ReadNBytes(publicKeyLength)
	if err != nil {
		return nil, fmt.Errorf("transaction: decode fee payer: %w", err)
	}
	tx.FeePayer = solana.PublicKeyFromBytes(payer)
	if tx.RecentRound, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("transaction: decode recent round: %w", err)
	}
	count, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("transaction: decode instruction count: %w", err)
	}
	if count > MaxInstructions {
		return nil, fmt.Errorf("transaction: %d instructions exceeds limit %d", count, MaxInstructions)
	}
	tx.Instructions = make([]Instruction, 0, count)
	for i := uint32(0); i < count; i++ {
		ix, err := decodeInstruction(decoder)
		if err != nil {
			return nil, fmt.Errorf("transaction: instruction %d: %w", i, err)
		}
		tx.Instructions = append(tx.Instructions, ix)
	}
	return tx, nil
}

func decodeInstruction(decoder *bin.Decoder) (Instruction, error) {
	var ix Instruction
	program, err := decoder.ReadNBytes(publicKeyLength)
	if err != nil {
		return ix, err
	}
	ix.ProgramID = solana.PublicKeyFromBytes(program)
	n, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil {
		return ix, err
	}
	if n > MaxAccountsPerInstruction {
		return ix, fmt.Errorf("too many accounts (%d)", n)
	}
	ix.Accounts = make([]AccountMeta, 0, n)
	for j := uint32(0); j < n; j++ {
		key, err := decoder.ReadNBytes(publicKeyLength)
		if err != nil {
			return ix, err
		}
		flags, err := decoder.ReadUint8()
		if err != nil {
			return ix, err
		}
		ix.Accounts = append(ix.Accounts, AccountMeta{
			PublicKey:  solana.PublicKeyFromBytes(key),
			IsSigner:   flags&metaFlagSigner != 0,
			IsWritable: flags&metaFlagWritable != 0,
		})
	}
	size, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil {
		return ix, err
	}
	if size > MaxInstructionData {
		return ix, fmt.Errorf("data too large (%d)", size)
	}
	data, err := decoder.ReadNBytes(int(size))
	if err != nil {
		return ix, err
	}
	ix.Data = append([]byte(nil), data...)
	return ix, nil
}
