package bounty

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
	"prizechain/native/system"
)

// Instruction names, as they appear in metrics, events and logs.
const (
	OpInitialize = "initialize"
	OpCreate     = "create_bounty"
	OpAssign     = "assign_bounty"
	OpComplete   = "complete_bounty"
	OpCancel     = "cancel_bounty"
)

func instructionDiscriminator(name string) discriminator {
	return hashDiscriminator("global:" + name)
}

var instructionNames = map[discriminator]string{
	instructionDiscriminator(OpInitialize): OpInitialize,
	instructionDiscriminator(OpCreate):     OpCreate,
	instructionDiscriminator(OpAssign):     OpAssign,
	instructionDiscriminator(OpComplete):   OpComplete,
	instructionDiscriminator(OpCancel):     OpCancel,
}

// CreateArgs are the create_bounty arguments.
type CreateArgs struct {
	BountyID       uint64
	RewardAmount   uint64
	GithubIssueURL string
	RepoName       string
	IssueNumber    uint64
}

func (a CreateArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint64(a.BountyID, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteUint64(a.RewardAmount, binary.LittleEndian); err != nil {
		return err
	}
	if err := writeString(encoder, a.GithubIssueURL); err != nil {
		return err
	}
	if err := writeString(encoder, a.RepoName); err != nil {
		return err
	}
	return encoder.WriteUint64(a.IssueNumber, binary.LittleEndian)
}

func (a *CreateArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.BountyID, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if a.RewardAmount, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	// Over-long strings are decoded so validation can report them as
	// InvalidArgument instead of a framing error.
	if a.GithubIssueURL, err = readString(decoder, types.MaxInstructionData); err != nil {
		return err
	}
	if a.RepoName, err = readString(decoder, types.MaxInstructionData); err != nil {
		return err
	}
	a.IssueNumber, err = decoder.ReadUint64(binary.LittleEndian)
	return err
}

func encodeInstruction(name string, args bin.BinaryMarshaler) ([]byte, error) {
	var buf bytes.Buffer
	d := instructionDiscriminator(name)
	buf.Write(d[:])
	if args != nil {
		if err := args.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// decodeInstruction splits instruction data into its name and argument bytes.
func decodeInstruction(data []byte) (string, []byte, error) {
	if len(data) < discriminatorLen {
		return "", nil, fail(ErrInvalidInstruction, "data shorter than discriminator")
	}
	var d discriminator
	copy(d[:], data[:discriminatorLen])
	name, ok := instructionNames[d]
	if !ok {
		return "", nil, fail(ErrInvalidInstruction, "unknown discriminator %x", d[:])
	}
	return name, data[discriminatorLen:], nil
}

// NewInitializeInstruction builds initialize: [config (w), authority (w, s),
// system].
func NewInitializeInstruction(programID, authority solana.PublicKey) (types.Instruction, error) {
	configAddr, _, err := ConfigAddress(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := encodeInstruction(OpInitialize, nil)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.Meta(configAddr, true, false),
			types.Meta(authority, true, true),
			types.Meta(system.ProgramID, false, false),
		},
		Data: data,
	}, nil
}

// NewCreateBountyInstruction builds create_bounty: [bounty (w), config (w),
// creator (w, s), system].
func NewCreateBountyInstruction(programID, creator solana.PublicKey, args CreateArgs) (types.Instruction, error) {
	configAddr, _, err := ConfigAddress(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	bountyAddr, _, err := BountyAddress(programID, args.BountyID)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := encodeInstruction(OpCreate, args)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.Meta(bountyAddr, true, false),
			types.Meta(configAddr, true, false),
			types.Meta(creator, true, true),
			types.Meta(system.ProgramID, false, false),
		},
		Data: data,
	}, nil
}

// NewAssignBountyInstruction builds assign_bounty: [bounty (w), creator (s),
// assignee].
func NewAssignBountyInstruction(programID, bountyAddr, creator, assignee solana.PublicKey) (types.Instruction, error) {
	data, err := encodeInstruction(OpAssign, nil)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.Meta(bountyAddr, true, false),
			types.Meta(creator, false, true),
			types.Meta(assignee, false, false),
		},
		Data: data,
	}, nil
}

// NewCompleteBountyInstruction builds complete_bounty: [bounty (w), creator
// (w, s), recipient (w), system].
func NewCompleteBountyInstruction(programID, bountyAddr, creator, recipient solana.PublicKey) (types.Instruction, error) {
	data, err := encodeInstruction(OpComplete, nil)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.Meta(bountyAddr, true, false),
			types.Meta(creator, true, true),
			types.Meta(recipient, true, false),
			types.Meta(system.ProgramID, false, false),
		},
		Data: data,
	}, nil
}

// NewCancelBountyInstruction builds cancel_bounty: [bounty (w), creator
// (w, s), system].
func NewCancelBountyInstruction(programID, bountyAddr, creator solana.PublicKey) (types.Instruction, error) {
	data, err := encodeInstruction(OpCancel, nil)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.Meta(bountyAddr, true, false),
			types.Meta(creator, true, true),
			types.Meta(system.ProgramID, false, false),
		},
		Data: data,
	}, nil
}

func decodeCreateArgs(raw []byte) (CreateArgs, error) {
	var args CreateArgs
	decoder := bin.NewBorshDecoder(raw)
	if err := args.UnmarshalWithDecoder(decoder); err != nil {
		return args, fail(ErrInvalidInstruction, "decode create_bounty args: %v", err)
	}
	if decoder.Remaining() != 0 {
		return args, fail(ErrInvalidInstruction, "%d trailing bytes", decoder.Remaining())
	}
	return args, nil
}

func requireNoArgs(name string, raw []byte) error {
	if len(raw) != 0 {
		return fail(ErrInvalidInstruction, "%s takes no arguments", name)
	}
	return nil
}

func requireAccounts(name string, accounts []types.AccountMeta, n int) error {
	if len(accounts) != n {
		return fail(ErrInvalidInstruction, "%s expects %d accounts, got %d", name, n, len(accounts))
	}
	return nil
}

// InstructionName resolves the instruction name encoded in data.
func InstructionName(data []byte) (string, error) {
	name, _, err := decodeInstruction(data)
	if err != nil {
		return "", err
	}
	return name, nil
}
