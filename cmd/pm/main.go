package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/awnumar/memguard"
	"golang.org/x/term"

	"github.com/Hussein-Mazeh/pinvault/auth"
	"github.com/Hussein-Mazeh/pinvault/internal/config"
	"github.com/Hussein-Mazeh/pinvault/internal/logger"
	"github.com/Hussein-Mazeh/pinvault/internal/service"
	"github.com/Hussein-Mazeh/pinvault/internal/unlock"
	"github.com/Hussein-Mazeh/pinvault/internal/vault"
	"github.com/Hussein-Mazeh/pinvault/krypto"
	"github.com/Hussein-Mazeh/pinvault/store"
)

const cliVersion = "0.2.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

type globals struct {
	cfg config.Config
	log *slog.Logger
}

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := run(os.Args[1:]); err != nil {
		handleError(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("pm", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var cfgPath, dir, level string
	var jsonLogs bool
	fs.StringVar(&cfgPath, "config", "", "YAML config file")
	fs.StringVar(&dir, "dir", "", "vault directory")
	fs.StringVar(&level, "log-level", "", "debug|info|warn|error")
	fs.BoolVar(&jsonLogs, "log-json", false, "log as JSON")

	if err := fs.Parse(args); err != nil {
		printUsage()
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() == 0 {
		printUsage()
		return userError{msg: "missing command"}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return userError{msg: err.Error()}
	}
	if dir != "" {
		cfg.Dir = dir
	}
	if level != "" {
		cfg.Log.Level = level
	}
	if jsonLogs {
		cfg.Log.Format = "json"
	}
	lvl, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return userError{msg: err.Error()}
	}
	base := logger.New(lvl, cfg.JSONLogs())
	g := globals{cfg: cfg, log: base.Logger}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	base.WithComponent("cli").Debug("running command", "command", cmd, "dir", cfg.Dir)
	ctx := context.Background()
	switch cmd {
	case "version":
		fmt.Println(cliVersion)
		return nil
	case "create":
		return runCreate(ctx, g, rest)
	case "unlock":
		return runUnlock(ctx, g, rest)
	case "status":
		return runStatus(ctx, g, rest)
	case "destroy":
		return runDestroy(ctx, g, rest)
	default:
		printUsage()
		return userError{msg: fmt.Sprintf("unknown command %q", cmd)}
	}
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		memguard.SafeExit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	memguard.SafeExit(2)
}

func openSession(g globals) (*service.Session, error) {
	s, err := service.Open(g.cfg.Dir, g.log)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return s, nil
}

func noArgs(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}
	return nil
}

func runCreate(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var seedPath string
	fs.StringVar(&seedPath, "seed", "", "JSON file with initial cards and flows")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	seed := vault.Seed{Cards: []vault.Card{}, Flows: []vault.Flow{}}
	if seedPath != "" {
		f, err := os.Open(seedPath)
		if err != nil {
			return userError{msg: fmt.Sprintf("cannot read seed file: %v", err)}
		}
		seed, err = vault.LoadSeed(f)
		f.Close()
		if err != nil {
			return userError{msg: fmt.Sprintf("invalid seed file: %v", err)}
		}
	}

	s, err := openSession(g)
	if err != nil {
		return err
	}
	defer s.Close()

	exists, err := s.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check vault: %w", err)
	}
	if exists {
		return userError{msg: "a vault already exists in " + g.cfg.Dir}
	}

	pin, err := promptPassword("Choose PIN: ")
	if err != nil {
		return fmt.Errorf("read pin: %w", err)
	}
	defer zeroBytes(pin)

	confirm, err := promptPassword("Confirm PIN: ")
	if err != nil {
		return fmt.Errorf("read confirmation pin: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pin, confirm) {
		return userError{msg: "PINs do not match"}
	}
	if err := auth.ValidatePIN(pin); err != nil {
		return userError{msg: fmt.Sprintf("PIN must be at least %d characters without spaces", krypto.MinPINLength)}
	}
	if st := auth.PINStrength(pin); st.Weak() {
		fmt.Fprintf(os.Stderr, "warning: weak PIN (crackable in %s)\n", st.CrackTime)
	}

	if err := s.Create(ctx, pin, seed); err != nil {
		if errors.Is(err, store.ErrVaultExists) {
			return userError{msg: "a vault already exists in " + g.cfg.Dir}
		}
		return err
	}

	fmt.Printf("vault created in %s (%d cards, %d flows)\n", g.cfg.Dir, len(seed.Cards), len(seed.Flows))
	return nil
}

func runUnlock(ctx context.Context, g globals, args []string) error {
	if err := noArgs("unlock", args); err != nil {
		return err
	}

	s, err := openSession(g)
	if err != nil {
		return err
	}
	defer s.Close()

	// Answer a locked or missing vault before prompting.
	exists, err := s.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check vault: %w", err)
	}
	if !exists {
		return userError{msg: "no vault found; run pm create first"}
	}
	if remaining, locked := s.LockoutStatus(ctx); locked {
		return userError{msg: fmt.Sprintf("locked out, try again in %ds", seconds(remaining.Milliseconds()))}
	}

	pin, err := promptPassword("PIN: ")
	if err != nil {
		return fmt.Errorf("read pin: %w", err)
	}
	defer zeroBytes(pin)

	res, err := s.Unlock(ctx, pin)
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	switch r := res.(type) {
	case unlock.Success:
		fmt.Printf("unlocked: %d cards, %d flows (last modified %s)\n",
			len(r.Cards), len(r.Flows), r.Data.LastModified.Format("2006-01-02 15:04:05"))
		return nil
	case unlock.WrongPIN:
		return userError{msg: fmt.Sprintf("wrong PIN, %d attempts remaining", r.AttemptsRemaining)}
	case unlock.LockedOut:
		return userError{msg: fmt.Sprintf("locked out, try again in %ds", seconds(r.RemainingMs()))}
	case unlock.NoVault:
		return userError{msg: "no vault found; run pm create first"}
	default:
		return fmt.Errorf("unexpected unlock result %T", res)
	}
}

func runStatus(ctx context.Context, g globals, args []string) error {
	if err := noArgs("status", args); err != nil {
		return err
	}

	s, err := openSession(g)
	if err != nil {
		return err
	}
	defer s.Close()

	exists, err := s.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check vault: %w", err)
	}
	if !exists {
		fmt.Printf("no vault in %s\n", g.cfg.Dir)
		return nil
	}
	if remaining, locked := s.LockoutStatus(ctx); locked {
		fmt.Printf("vault in %s: locked out for %ds\n", g.cfg.Dir, seconds(remaining.Milliseconds()))
		return nil
	}
	fmt.Printf("vault in %s: ready\n", g.cfg.Dir)
	return nil
}

func runDestroy(ctx context.Context, g globals, args []string) error {
	if err := noArgs("destroy", args); err != nil {
		return err
	}

	s, err := openSession(g)
	if err != nil {
		return err
	}
	s.Wipe(ctx)
	fmt.Println("vault destroyed")
	return nil
}

// seconds rounds a millisecond countdown up for display.
func seconds(ms int64) int64 {
	return (ms + 999) / 1000
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: pm [--config file] [--dir vault-dir] [--log-level level] [--log-json] <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version")
	fmt.Fprintln(os.Stderr, "  create [--seed file.json]")
	fmt.Fprintln(os.Stderr, "  unlock")
	fmt.Fprintln(os.Stderr, "  status")
	fmt.Fprintln(os.Stderr, "  destroy")
}
