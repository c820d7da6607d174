// Command credential encodes and checks credential records using the
// scheme registry from the gateway configuration.
//
// Usage:
//
//	credential [-config path] encode [-scheme id] [secret]
//	credential [-config path] verify <record> [secret]
//	credential [-config path] schemes
//	credential [-config path] passwd [-create] <username> [secret]
//
// When secret is omitted it is read from the first line of stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rhuss/gatehouse/pkg/auth/basic"
	"github.com/rhuss/gatehouse/pkg/config"
	"github.com/rhuss/gatehouse/pkg/credential"
	"github.com/rhuss/gatehouse/pkg/gateway"
	"github.com/rhuss/gatehouse/pkg/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "credential:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("credential", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("missing command: encode, verify, schemes or passwd")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	verifier, err := gateway.NewCredentials(cfg.Credentials)
	if err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "encode":
		return encode(verifier, rest, stdin, stdout)
	case "verify":
		return verify(verifier, rest, stdin, stdout)
	case "passwd":
		return passwd(cfg, verifier, rest, stdin, stdout)
	case "schemes":
		for _, id := range verifier.Schemes() {
			marker := ""
			if id == verifier.DefaultEncodeScheme() {
				marker += " encode"
			}
			if id == verifier.DefaultMatchScheme() {
				marker += " match"
			}
			fmt.Fprintf(stdout, "%s%s\n", id, marker)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func encode(v *credential.Delegating, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	scheme := fs.String("scheme", "", "scheme to encode with (default: the configured default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret, err := secretArg(fs.Args(), 0, stdin)
	if err != nil {
		return err
	}

	var record string
	if *scheme == "" {
		record, err = v.Encode(secret)
	} else {
		record, err = v.EncodeWith(*scheme, secret)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, record)
	return nil
}

func verify(v *credential.Delegating, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("verify: missing record")
	}
	record := args[0]
	secret, err := secretArg(args, 1, stdin)
	if err != nil {
		return err
	}
	if !v.Verify(secret, record) {
		return errors.New("no match")
	}
	if v.NeedsUpgrade(record) {
		fmt.Fprintln(stdout, "match (needs upgrade)")
		return nil
	}
	fmt.Fprintln(stdout, "match")
	return nil
}

// passwd stores a freshly encoded record for a user in the database store.
func passwd(cfg *config.Config, v *credential.Delegating, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	create := fs.Bool("create", false, "create the user if it does not exist")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("passwd: missing username")
	}
	username := fs.Arg(0)
	secret, err := secretArg(fs.Args(), 1, stdin)
	if err != nil {
		return err
	}

	ctx := context.Background()
	dir, err := gateway.OpenUserDirectory(ctx, cfg.Auth.UserStore)
	if err != nil {
		return err
	}
	if dir == nil {
		return errors.New("passwd: auth.user_store.type must be postgres")
	}
	defer dir.Close()

	record, err := v.Encode(secret)
	if err != nil {
		return err
	}
	err = dir.Postgres.UpdatePassword(ctx, username, record)
	if errors.Is(err, storage.ErrNotFound) && *create {
		err = dir.Postgres.CreateUser(ctx, basic.User{Username: username, Record: record})
	}
	if err != nil {
		return fmt.Errorf("passwd %s: %w", username, err)
	}
	fmt.Fprintf(stdout, "password set for %s\n", username)
	return nil
}

func secretArg(args []string, i int, stdin io.Reader) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty secret")
	}
	return line, nil
}
