package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/warpdl/rtfetch/cmd/common"
)

func resolve(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no remote path provided"))
	} else if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	cfg, err := loadConfig()
	if err != nil {
		common.PrintRuntimeErr(ctx, "resolve", "load_config", err)
		return ErrReported
	}
	l, err := newLogger(cfg, logLevel, verbose, stderr)
	if err != nil {
		common.PrintRuntimeErr(ctx, "resolve", "logger", err)
		return ErrReported
	}
	defer l.Close()
	s, err := openSession(cfg, l)
	if err != nil {
		common.PrintRuntimeErr(ctx, "resolve", "session", err)
		return ErrReported
	}
	defer s.Close()

	if n := s.resolvePaths(context.Background(), stdout, ctx.Args()); n > 0 {
		return fmt.Errorf("%d path(s) not found", n)
	}
	return nil
}

// resolvePaths prints what every candidate resolves to and returns the
// number of failures.
func (s *session) resolvePaths(ctx context.Context, w io.Writer, candidates []string) int {
	failed := 0
	for _, c := range candidates {
		res, err := s.resolver.Resolve(ctx, c)
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s\n    !! %s\n", c, err)
			continue
		}
		size := "unknown size"
		if res.Size > 0 {
			size = humanize.IBytes(uint64(res.Size))
		}
		fmt.Fprintf(w, "%s\n    -> %s (%s)\n", c, res.Path, size)
	}
	return failed
}
