package bounty

import (
	"sort"

	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
)

// AccountReader is the committed-state view the read side needs. Lookups
// derive addresses; listings scan program-owned accounts and keep those
// carrying the Bounty discriminator.
type AccountReader interface {
	GetAccount(addr solana.PublicKey) (*types.Account, error)
	ScanAccounts(owner solana.PublicKey, fn func(addr solana.PublicKey, acc *types.Account) error) error
}

// Entry is a bounty together with where it lives and what it holds.
type Entry struct {
	Address  solana.PublicKey
	Lamports uint64
	Bounty   *Bounty
}

// ListFilter narrows ListBounties. Zero values match everything.
type ListFilter struct {
	Creator *solana.PublicKey
	Status  *Status
	Limit   int
}

// Reader serves lookups against committed state.
type Reader struct {
	programID solana.PublicKey
	state     AccountReader
}

func NewReader(programID solana.PublicKey, state AccountReader) *Reader {
	return &Reader{programID: programID, state: state}
}

// GetConfig loads the ProgramConfig record.
func (r *Reader) GetConfig() (*ProgramConfig, solana.PublicKey, error) {
	addr, _, err := ConfigAddress(r.programID)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	acc, err := r.state.GetAccount(addr)
	if err != nil {
		return nil, addr, err
	}
	if acc == nil || !acc.Owner.Equals(r.programID) || !IsConfigData(acc.Data) {
		return nil, addr, ErrNotInitialized
	}
	cfg, err := DecodeConfig(acc.Data)
	if err != nil {
		return nil, addr, err
	}
	return cfg, addr, nil
}

// NextBountyID returns the id the next create_bounty must carry.
func (r *Reader) NextBountyID() (uint64, error) {
	cfg, _, err := r.GetConfig()
	if err != nil {
		return 0, err
	}
	return cfg.BountyCount + 1, nil
}

// GetBounty fetches bounty id at its derived address.
func (r *Reader) GetBounty(id uint64) (*Entry, error) {
	addr, _, err := BountyAddress(r.programID, id)
	if err != nil {
		return nil, err
	}
	entry, err := r.GetBountyAt(addr)
	if err != nil {
		return nil, err
	}
	if entry.Bounty.ID != id {
		return nil, fail(ErrAddressMismatch, "record at %s claims id %d", addr, entry.Bounty.ID)
	}
	return entry, nil
}

// GetBountyAt fetches the record at addr after re-deriving the address from
// its stored id and bump.
func (r *Reader) GetBountyAt(addr solana.PublicKey) (*Entry, error) {
	acc, err := r.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	record, err := decodeOwnedBounty(r.programID, addr, acc)
	if err != nil {
		return nil, err
	}
	return &Entry{Address: addr, Lamports: acc.Lamports, Bounty: record}, nil
}

// ListBounties returns every live bounty matching filter ordered by id.
func (r *Reader) ListBounties(filter ListFilter) ([]*Entry, error) {
	var out []*Entry
	err := r.state.ScanAccounts(r.programID, func(addr solana.PublicKey, acc *types.Account) error {
		if !IsBountyData(acc.Data) {
			return nil
		}
		record, err := decodeOwnedBounty(r.programID, addr, acc)
		if err != nil {
			return err
		}
		if filter.Creator != nil && !record.Creator.Equals(*filter.Creator) {
			return nil
		}
		if filter.Status != nil && record.Status != *filter.Status {
			return nil
		}
		out = append(out, &Entry{Address: addr, Lamports: acc.Lamports, Bounty: record})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bounty.ID < out[j].Bounty.ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
