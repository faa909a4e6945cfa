package prover

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ProvingKeyFile   = "trial.pk"
	VerifyingKeyFile = "trial.vk"
)

// Setup runs the groth16 setup for the compiled trial circuit.
func Setup() (groth16.ProvingKey, groth16.VerifyingKey, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, nil, ErrSetup.WithCause(fmt.Errorf("compile circuit: %w", err))
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, ErrSetup.WithCause(err)
	}
	return pk, vk, nil
}

// KeysExist reports whether both key files are present in dir.
func KeysExist(dir string) bool {
	for _, name := range []string{ProvingKeyFile, VerifyingKeyFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// SaveKeys writes the key pair to dir, replacing existing files atomically.
func SaveKeys(dir string, pk groth16.ProvingKey, vk groth16.VerifyingKey) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create keys dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, ProvingKeyFile), pk); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, VerifyingKeyFile), vk); err != nil {
		return fmt.Errorf("write verifying key: %w", err)
	}
	return nil
}

// LoadProvingKey reads trial.pk from dir.
func LoadProvingKey(dir string) (groth16.ProvingKey, error) {
	pk := groth16.NewProvingKey(ecc.BN254)
	if err := readFile(filepath.Join(dir, ProvingKeyFile), pk); err != nil {
		return nil, fmt.Errorf("read proving key: %w", err)
	}
	return pk, nil
}

// LoadVerifyingKey reads trial.vk from dir.
func LoadVerifyingKey(dir string) (groth16.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if err := readFile(filepath.Join(dir, VerifyingKeyFile), vk); err != nil {
		return nil, fmt.Errorf("read verifying key: %w", err)
	}
	return vk, nil
}

// FingerprintOf is the SHA-256 of the serialized verifying key. It plays the
// role of an image id: artifacts carry it and verifiers pin it.
func FingerprintOf(vk groth16.VerifyingKey) (common.Hash, error) {
	if vk == nil {
		return common.Hash{}, errors.New("nil verifying key")
	}
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return common.Hash{}, fmt.Errorf("serialize verifying key: %w", err)
	}
	return sha256.Sum256(buf.Bytes()), nil
}

func writeAtomic(path string, src io.WriterTo) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := src.WriteTo(w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readFile(path string, dst io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = dst.ReadFrom(bufio.NewReader(f))
	return err
}
