package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/ptxbuilder/cmd/ptxbuilder/commands"
	"git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("ptxbuilder"),
		kong.Description("Compile Rust crates to NVPTX assembly with cargo and ptx-linker"),
		kong.Vars{"version": version.String()},
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := parser.Run(commands.NewGlobal(ctx), cli); err != nil {
		cancel()
		// HandleError exits with the code matching the error kind.
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
