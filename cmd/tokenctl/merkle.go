package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/congo-pay/tokenledger/internal/allowlist"
	"github.com/congo-pay/tokenledger/internal/ledger"
	"github.com/congo-pay/tokenledger/internal/merkle"
)

var errProofRejected = errors.New("proof does not verify")

func merkleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merkle",
		Short: "Allow-list commitments and membership proofs",
	}
	cmd.AddCommand(merkleRootCommand(), merkleProofCommand(), merkleVerifyCommand())
	return cmd
}

func merkleRootCommand() *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "root",
		Short: "Print the commitment of an allow-list file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := allowlist.Load(file)
			if err != nil {
				return err
			}
			tree, err := list.Tree()
			if err != nil {
				return err
			}
			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), tree.Root().String())
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(struct {
				Root   merkle.Hash `json:"root"`
				Leaves int         `json:"leaves"`
			}{Root: tree.Root(), Leaves: tree.Len()})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "allow-list YAML file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the commitment and leaf count as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func merkleProofCommand() *cobra.Command {
	var (
		file    string
		account uint64
	)
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Print the membership proof of an account as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := allowlist.Load(file)
			if err != nil {
				return err
			}
			proof, err := list.Proof(ledger.AccountID(account))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(proof)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "allow-list YAML file")
	cmd.Flags().Uint64Var(&account, "account", 0, "account to prove")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func merkleVerifyCommand() *cobra.Command {
	var (
		account   uint64
		root      string
		proofFile string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a membership proof against a commitment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			commitment, err := merkle.ParseHash(root)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(proofFile)
			if err != nil {
				return fmt.Errorf("read proof: %w", err)
			}
			var proof merkle.Proof
			if err := json.Unmarshal(raw, &proof); err != nil {
				return fmt.Errorf("decode proof: %w", err)
			}
			if !merkle.Verify(ledger.AccountID(account).Encode(), commitment, proof) {
				return errProofRejected
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().Uint64Var(&account, "account", 0, "account the proof is for")
	cmd.Flags().StringVar(&root, "root", "", "commitment, 0x-prefixed hex")
	cmd.Flags().StringVar(&proofFile, "proof", "", "proof JSON file")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("root")
	_ = cmd.MarkFlagRequired("proof")
	return cmd
}
