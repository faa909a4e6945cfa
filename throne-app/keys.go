package main

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/prover"
)

func runKeygen(*cobra.Command, []string) error {
	pub, priv, err := attestation.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate attestation key: %w", err)
	}
	admin, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate admin key: %w", err)
	}

	fmt.Println("Attestation key (Ed25519)")
	fmt.Printf("  private_key: %s\n", attestation.EncodeSeed(priv))
	fmt.Printf("  public_key:  %s\n", hexutil.Encode(pub))
	fmt.Println()
	fmt.Println("Admin key (secp256k1)")
	fmt.Printf("  private_key: %s\n", hexutil.Encode(crypto.FromECDSA(admin)))
	fmt.Printf("  address:     %s\n", crypto.PubkeyToAddress(admin.PublicKey).Hex())
	return nil
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := cfg.Prover.KeysDir
	if dir == "" {
		return fmt.Errorf("prover.keys_dir is required")
	}
	force, _ := cmd.Flags().GetBool("force")
	if prover.KeysExist(dir) && !force {
		return fmt.Errorf("keys already exist in %s (use --force to replace them)", dir)
	}

	fmt.Printf("Running circuit setup into %s ...\n", dir)
	pk, vk, err := prover.Setup()
	if err != nil {
		return err
	}
	if err := prover.SaveKeys(dir, pk, vk); err != nil {
		return err
	}
	fp, err := prover.FingerprintOf(vk)
	if err != nil {
		return err
	}
	fmt.Printf("Fingerprint: %s\n", fp.Hex())
	return nil
}

func runFingerprint(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	vk, err := prover.LoadVerifyingKey(cfg.Prover.KeysDir)
	if err != nil {
		return err
	}
	fp, err := prover.FingerprintOf(vk)
	if err != nil {
		return err
	}
	fmt.Println(fp.Hex())
	return nil
}
