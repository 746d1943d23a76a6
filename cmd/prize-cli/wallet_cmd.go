package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prizechain/crypto"
)

func (a *app) newKeygenCmd() *cobra.Command {
	var (
		encrypt bool
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new wallet key at --key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.keyPath); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", a.keyPath)
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if encrypt {
				secret, err := a.pass.Get()
				if err != nil {
					return err
				}
				err = crypto.SaveToKeystore(a.keyPath, key, secret)
				if err != nil {
					return err
				}
			} else if err := crypto.SaveKeypair(a.keyPath, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nAddress: %s\n", a.keyPath, key.PublicKey())
			return nil
		},
	}
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Write an encrypted keystore instead of a plain keypair")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key file")
	return cmd
}

func (a *app) newAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the wallet address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.loadKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PublicKey())
			return nil
		},
	}
}

func (a *app) newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the balance of an address, or of the wallet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			addr, err := a.resolveAddress(arg)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			lamports, err := a.client().Balance(ctx, addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s PRIZE (%d lamports)\n", formatAmount(lamports), lamports)
			return nil
		},
	}
}

func (a *app) newAirdropCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "airdrop <amount>",
		Short: "Request faucet funds from a development node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lamports, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			addr, err := a.resolveAddress(to)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			balance, err := a.client().RequestAirdrop(ctx, addr, lamports)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Airdropped %s PRIZE to %s, balance %s PRIZE\n",
				formatAmount(lamports), addr, formatAmount(balance))
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient address (defaults to the wallet)")
	return cmd
}

func (a *app) newTransferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <to> <amount>",
		Short: "Send PRIZE from the wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := crypto.DecodeAddress(args[0])
			if err != nil {
				return err
			}
			lamports, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			w, err := a.wallet()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := w.Transfer(ctx, to, lamports)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transferred %s PRIZE to %s\nSignature: %s\n", formatAmount(lamports), to, res.Signature)
			return nil
		},
	}
}
