package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"prizechain/core/types"
	"prizechain/crypto"
	"prizechain/native/bounty"
)

func param(params []json.RawMessage, i int) json.RawMessage {
	if i >= len(params) {
		return nil
	}
	raw := params[i]
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func paramString(params []json.RawMessage, i int, name string) (string, error) {
	raw := param(params, i)
	if raw == nil {
		return "", invalidParams(fmt.Sprintf("%s required", name))
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", invalidParams(fmt.Sprintf("%s must be a string", name))
	}
	return strings.TrimSpace(v), nil
}

func paramAddress(params []json.RawMessage, i int, name string) (solana.PublicKey, error) {
	v, err := paramString(params, i, name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	addr, err := crypto.DecodeAddress(v)
	if err != nil {
		return solana.PublicKey{}, invalidParams(fmt.Sprintf("invalid %s: %v", name, err))
	}
	return addr, nil
}

// paramUint64 accepts a JSON number or a decimal string.
func paramUint64(params []json.RawMessage, i int, name string) (uint64, bool, error) {
	raw := param(params, i)
	if raw == nil {
		return 0, false, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, true, invalidParams(fmt.Sprintf("%s must be an unsigned integer", name))
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, true, invalidParams(fmt.Sprintf("%s must be an unsigned integer", name))
	}
	return v, true, nil
}

func (s *Server) getBalance(_ context.Context, params []json.RawMessage) (interface{}, error) {
	addr, err := paramAddress(params, 0, "address")
	if err != nil {
		return nil, err
	}
	lamports, err := s.ledger.Balance(addr)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Address: addr.String(), Lamports: lamports}, nil
}

func (s *Server) getAccountInfo(_ context.Context, params []json.RawMessage) (interface{}, error) {
	addr, err := paramAddress(params, 0, "address")
	if err != nil {
		return nil, err
	}
	acc, err := s.ledger.Account(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}
	return accountResult(addr, acc), nil
}

func (s *Server) getRound(context.Context, []json.RawMessage) (interface{}, error) {
	return roundResult(s.ledger.Round(), s.ledger.Pending(), s.ledger.Config().LamportsPerSignature), nil
}

func (s *Server) getMinimumBalance(_ context.Context, params []json.RawMessage) (interface{}, error) {
	space, _, err := paramUint64(params, 0, "space")
	if err != nil {
		return nil, err
	}
	if space > types.MaxInstructionData*8 {
		return nil, invalidParams("space too large")
	}
	return s.ledger.Runtime().Rent().MinimumBalance(int(space)), nil
}

func (s *Server) getReceipt(_ context.Context, params []json.RawMessage) (interface{}, error) {
	raw, err := paramString(params, 0, "signature")
	if err != nil {
		return nil, err
	}
	sig, err := solana.SignatureFromBase58(raw)
	if err != nil {
		return nil, invalidParams(fmt.Sprintf("invalid signature: %v", err))
	}
	return s.ledger.Receipt(sig)
}

func (s *Server) sendTransaction(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	encoded, err := paramString(params, 0, "transaction")
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, invalidParams("transaction must be base64")
	}
	tx, err := types.DecodeTransaction(raw)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	var opts SendOptions
	if extra := param(params, 1); extra != nil {
		if err := json.Unmarshal(extra, &opts); err != nil {
			return nil, invalidParams("invalid send options")
		}
	}
	if opts.SkipWait {
		sig, err := s.ledger.Submit(tx)
		if err != nil {
			return nil, err
		}
		return &SendResult{Signature: sig.String()}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()
	receipt, err := s.ledger.SubmitAndWait(waitCtx, tx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		// Still queued; the caller polls getReceipt.
		return &SendResult{Signature: tx.Signature.String()}, nil
	case err != nil:
		return nil, err
	case !receipt.Committed():
		return nil, receiptRPCError(receipt)
	}
	return &SendResult{Signature: tx.Signature.String(), Receipt: receipt}, nil
}

func (s *Server) requestAirdrop(_ context.Context, params []json.RawMessage) (interface{}, error) {
	addr, err := paramAddress(params, 0, "address")
	if err != nil {
		return nil, err
	}
	lamports, ok, err := paramUint64(params, 1, "lamports")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalidParams("lamports required")
	}
	if err := s.ledger.Airdrop(addr, lamports); err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(addr)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Address: addr.String(), Lamports: balance}, nil
}

func (s *Server) bountyGetConfig(context.Context, []json.RawMessage) (interface{}, error) {
	cfg, addr, err := s.reader.GetConfig()
	if err != nil {
		return nil, err
	}
	return &ConfigResult{
		Address:      addr.String(),
		Authority:    cfg.Authority.String(),
		BountyCount:  cfg.BountyCount,
		NextBountyID: cfg.BountyCount + 1,
		Bump:         cfg.Bump,
		ProgramID:    s.programID.String(),
	}, nil
}

// bountyGet accepts either a numeric id or a record address.
func (s *Server) bountyGet(_ context.Context, params []json.RawMessage) (interface{}, error) {
	if id, ok, err := paramUint64(params, 0, "id"); err == nil && ok {
		entry, err := s.reader.GetBounty(id)
		if err != nil {
			return nil, err
		}
		return bountyResult(entry), nil
	}
	addr, err := paramAddress(params, 0, "id or address")
	if err != nil {
		return nil, err
	}
	entry, err := s.reader.GetBountyAt(addr)
	if err != nil {
		return nil, err
	}
	return bountyResult(entry), nil
}

func (s *Server) bountyList(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var in ListParams
	if raw := param(params, 0); raw != nil {
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, invalidParams("invalid list filter")
		}
	}
	var filter bounty.ListFilter
	if in.Creator != "" {
		creator, err := crypto.DecodeAddress(in.Creator)
		if err != nil {
			return nil, invalidParams(fmt.Sprintf("invalid creator: %v", err))
		}
		filter.Creator = &creator
	}
	if in.Status != "" {
		status, err := bounty.ParseStatus(in.Status)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
		filter.Status = &status
	}
	if in.Limit < 0 {
		return nil, invalidParams("limit must not be negative")
	}
	filter.Limit = in.Limit
	entries, err := s.reader.ListBounties(filter)
	if err != nil {
		return nil, err
	}
	out := make([]*BountyResult, 0, len(entries))
	for _, entry := range entries {
		out = append(out, bountyResult(entry))
	}
	return out, nil
}

// bountyDeriveAddress derives a bounty address, or the config address when
// no id is given.
func (s *Server) bountyDeriveAddress(_ context.Context, params []json.RawMessage) (interface{}, error) {
	id, ok, err := paramUint64(params, 0, "id")
	if err != nil {
		return nil, err
	}
	var (
		addr solana.PublicKey
		bump uint8
	)
	if ok {
		addr, bump, err = bounty.BountyAddress(s.programID, id)
	} else {
		addr, bump, err = bounty.ConfigAddress(s.programID)
	}
	if err != nil {
		return nil, err
	}
	return &AddressResult{Address: addr.String(), Bump: bump}, nil
}
