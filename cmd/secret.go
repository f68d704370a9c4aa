package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli"
	"github.com/warpdl/rtfetch/cmd/common"
	"github.com/warpdl/rtfetch/internal/config"
	"github.com/warpdl/rtfetch/pkg/credman"
	"github.com/warpdl/rtfetch/pkg/credman/keyring"
)

// secretTarget returns the store and item a secret command works on. The
// item defaults to the keyring reference of server.password, then to the
// server user.
func secretTarget(cfg *config.Config, arg string) (keyring.Store, string) {
	service := cfg.Secrets.KeyringService
	item := cfg.Server.User
	if ref, ok := strings.CutPrefix(cfg.Server.Password, "keyring:"); ok {
		s, i := credman.SplitKeyringRef(ref, service)
		service = s
		if i != "" {
			item = i
		}
	}
	if arg != "" {
		service, item = credman.SplitKeyringRef(arg, cfg.Secrets.KeyringService)
	}
	return secretStores(secretFallbackDir(cfg))(service), item
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty secret")
	}
	return line, nil
}

func secretSet(ctx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		common.PrintRuntimeErr(ctx, "secret", "load_config", err)
		return ErrReported
	}
	store, item := secretTarget(cfg, ctx.Args().First())
	if item == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no secret item provided"))
	}
	fmt.Fprintf(stderr, "Enter the secret for %q followed by a newline: ", item)
	secret, err := readSecret(stdin)
	fmt.Fprintln(stderr)
	if err != nil {
		common.PrintRuntimeErr(ctx, "secret", "read", err)
		return ErrReported
	}
	if err := store.Set(item, secret); err != nil {
		common.PrintRuntimeErr(ctx, "secret", "set", err)
		return ErrReported
	}
	fmt.Fprintf(stdout, "Stored secret %q\n", item)
	return nil
}

func secretDelete(ctx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		common.PrintRuntimeErr(ctx, "secret", "load_config", err)
		return ErrReported
	}
	store, item := secretTarget(cfg, ctx.Args().First())
	if item == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no secret item provided"))
	}
	if err := store.Delete(item); err != nil {
		common.PrintRuntimeErr(ctx, "secret", "delete", err)
		return ErrReported
	}
	fmt.Fprintf(stdout, "Deleted secret %q\n", item)
	return nil
}
