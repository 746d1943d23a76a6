package bounty

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// MaxGithubIssueURLLen bounds the stored issue url in bytes.
	MaxGithubIssueURLLen = 200
	// MaxRepoNameLen bounds the stored repository name in bytes.
	MaxRepoNameLen = 100

	discriminatorLen = 8

	// ConfigSpace is the allocated size of the ProgramConfig record.
	ConfigSpace = discriminatorLen + 32 + 8 + 1
	// BountySpace is the allocated size of a Bounty record sized for the
	// longest url and repository name.
	BountySpace = discriminatorLen + 8 + 32 + 8 + 2 + 33 + (4 + MaxGithubIssueURLLen) + (4 + MaxRepoNameLen) + 8 + 8 + 9 + 1
)

type discriminator [discriminatorLen]byte

func accountDiscriminator(name string) discriminator {
	return hashDiscriminator("account:" + name)
}

func hashDiscriminator(preimage string) discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d discriminator
	copy(d[:], sum[:discriminatorLen])
	return d
}

var (
	configDiscriminator = accountDiscriminator("ProgramConfig")
	bountyDiscriminator = accountDiscriminator("Bounty")
)

// IsConfigData reports whether data carries the ProgramConfig discriminator.
func IsConfigData(data []byte) bool {
	return len(data) >= discriminatorLen && bytes.Equal(data[:discriminatorLen], configDiscriminator[:])
}

// IsBountyData reports whether data carries the Bounty discriminator.
func IsBountyData(data []byte) bool {
	return len(data) >= discriminatorLen && bytes.Equal(data[:discriminatorLen], bountyDiscriminator[:])
}

func (c ProgramConfig) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(configDiscriminator[:], false); err != nil {
		return err
	}
	if err := encoder.WriteBytes(c.Authority[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint64(c.BountyCount, binary.LittleEndian); err != nil {
		return err
	}
	return encoder.WriteUint8(c.Bump)
}

func (c *ProgramConfig) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	if err := expectDiscriminator(decoder, configDiscriminator); err != nil {
		return err
	}
	authority, err := decoder.ReadNBytes(32)
	if err != nil {
		return err
	}
	count, err := decoder.ReadUint64(binary.LittleEndian)
	if err != nil {
		return err
	}
	bump, err := decoder.ReadUint8()
	if err != nil {
		return err
	}
	c.Authority = solana.PublicKeyFromBytes(authority)
	c.BountyCount = count
	c.Bump = bump
	return nil
}

func (b Bounty) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(bountyDiscriminator[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint64(b.ID, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteBytes(b.Creator[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint64(b.RewardAmount, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteUint8(uint8(b.Status)); err != nil {
		return err
	}
	if err := encoder.WriteBool(b.Assignee != nil); err != nil {
		return err
	}
	if b.Assignee != nil {
		if err := encoder.WriteBytes(b.Assignee[:], false); err != nil {
			return err
		}
	}
	if err := writeString(encoder, b.GithubIssueURL); err != nil {
		return err
	}
	if err := writeString(encoder, b.RepoName); err != nil {
		return err
	}
	if err := encoder.WriteUint64(b.IssueNumber, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteInt64(b.CreatedAt, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteBool(b.CompletedAt != nil); err != nil {
		return err
	}
	if b.CompletedAt != nil {
		if err := encoder.WriteInt64(*b.CompletedAt, binary.LittleEndian); err != nil {
			return err
		}
	}
	return encoder.WriteUint8(b.Bump)
}

func (b *Bounty) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if err = expectDiscriminator(decoder, bountyDiscriminator); err != nil {
		return err
	}
	if b.ID, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	creator, err := decoder.ReadNBytes(32)
	if err != nil {
		return err
	}
	b.Creator = solana.PublicKeyFromBytes(creator)
	if b.RewardAmount, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	status, err := decoder.ReadUint8()
	if err != nil {
		return err
	}
	b.Status = Status(status)
	if !b.Status.Valid() {
		return fmt.Errorf("invalid status tag %d", status)
	}
	hasAssignee, err := readOptionFlag(decoder)
	if err != nil {
		return err
	}
	b.Assignee = nil
	if hasAssignee {
		raw, err := decoder.ReadNBytes(32)
		if err != nil {
			return err
		}
		assignee := solana.PublicKeyFromBytes(raw)
		b.Assignee = &assignee
	}
	if b.GithubIssueURL, err = readString(decoder, MaxGithubIssueURLLen); err != nil {
		return err
	}
	if b.RepoName, err = readString(decoder, MaxRepoNameLen); err != nil {
		return err
	}
	if b.IssueNumber, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if b.CreatedAt, err = decoder.ReadInt64(binary.LittleEndian); err != nil {
		return err
	}
	hasCompleted, err := readOptionFlag(decoder)
	if err != nil {
		return err
	}
	b.CompletedAt = nil
	if hasCompleted {
		completed, err := decoder.ReadInt64(binary.LittleEndian)
		if err != nil {
			return err
		}
		b.CompletedAt = &completed
	}
	b.Bump, err = decoder.ReadUint8()
	return err
}

func expectDiscriminator(decoder *bin.Decoder, want discriminator) error {
	got, err := decoder.ReadNBytes(discriminatorLen)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want[:]) {
		return fmt.Errorf("discriminator mismatch")
	}
	return nil
}

func readOptionFlag(decoder *bin.Decoder) (bool, error) {
	flag, err := decoder.ReadUint8()
	if err != nil {
		return false, err
	}
	switch flag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid option tag %d", flag)
	}
}

func writeString(encoder *bin.Encoder, v string) error {
	if err := encoder.WriteUint32(uint32(len(v)), binary.LittleEndian); err != nil {
		return err
	}
	return encoder.WriteBytes([]byte(v), false)
}

func readString(decoder *bin.Decoder, max int) (string, error) {
	size, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	if int(size) > max {
		return "", fmt.Errorf("string length %d exceeds %d", size, max)
	}
	raw, err := decoder.ReadNBytes(int(size))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// encodeRecord serialises v into a zero-padded buffer of exactly space bytes.
func encodeRecord(v bin.BinaryMarshaler, space int) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	if buf.Len() > space {
		return nil, fmt.Errorf("record of %d bytes exceeds allocation of %d", buf.Len(), space)
	}
	out := make([]byte, space)
	copy(out, buf.Bytes())
	return out, nil
}

// EncodeConfig produces the ConfigSpace-byte record.
func EncodeConfig(c *ProgramConfig) ([]byte, error) {
	return encodeRecord(c, ConfigSpace)
}

// DecodeConfig parses a ProgramConfig record.
func DecodeConfig(data []byte) (*ProgramConfig, error) {
	cfg := new(ProgramConfig)
	if err := cfg.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("bounty: decode config: %w", err)
	}
	return cfg, nil
}

// EncodeBounty produces the BountySpace-byte record.
func EncodeBounty(b *Bounty) ([]byte, error) {
	return encodeRecord(b, BountySpace)
}

// DecodeBounty parses a Bounty record. Padding after the payload is ignored.
func DecodeBounty(data []byte) (*Bounty, error) {
	b := new(Bounty)
	if err := b.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("bounty: decode record: %w", err)
	}
	return b, nil
}
