// AngelaMos | 2026
// main.go

package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/TatyOko28/refresh-system/internal/auth"
	"github.com/TatyOko28/refresh-system/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	force := flag.Bool("force", false, "overwrite an existing key pair")
	flag.Parse()

	if err := run(*configPath, *force); err != nil {
		slog.Error("key generation failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, force bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	private, public := cfg.Token.SigningKeyPath, cfg.Token.PublicKeyPath

	if !force {
		if _, err := os.Stat(private); err == nil {
			return fmt.Errorf("%s exists; pass -force to replace it", private)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	for _, p := range []string{private, public} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}

	if err := auth.WriteKeyPair(private, public); err != nil {
		return err
	}

	signer, err := auth.LoadSigner(cfg.Token)
	if err != nil {
		return err
	}
	slog.Info("signing key written", "private", private, "public", public, "key_id", signer.KeyID())
	return nil
}
