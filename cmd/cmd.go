package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"
	"github.com/warpdl/rtfetch/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var (
	configPath string
	logLevel   string
	verbose    bool

	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "path of the configuration file",
			EnvVar:      "RTFETCH_CONFIG",
			Destination: &configPath,
		},
		cli.StringFlag{
			Name:        "log-level",
			Usage:       "override the configured log level (debug, info, warning, error)",
			Destination: &logLevel,
		},
		cli.BoolFlag{
			Name:        "verbose, V",
			Usage:       "log debug messages (same as --log-level debug)",
			Destination: &verbose,
		},
	}
)

func Execute(args []string, bArgs BuildArgs) error {
	app := cli.App{
		Name:                  "rtfetch",
		HelpName:              "rtfetch",
		Usage:                 "Pull completed torrents from a seedbox.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "rtfetch [global options] <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:                   "fetch",
				Aliases:                []string{"f"},
				Usage:                  "download the files of completed jobs",
				Description:            FetchDescription,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 fetch,
				UseShortOptionHandling: true,
				Flags:                  fetchFlags,
			},
			{
				Name:               "resolve",
				Aliases:            []string{"r"},
				Usage:              "show which remote file a path resolves to",
				UsageText:          "<remote path> [remote path...]",
				Description:        ResolveDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             resolve,
			},
			{
				Name:               "secret",
				Usage:              "store or remove the server password",
				Description:        SecretDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Subcommands: []cli.Command{
					{
						Name:      "set",
						Usage:     "read a secret from stdin and store it",
						UsageText: "secret set [item]",
						Action:    secretSet,
					},
					{
						Name:      "delete",
						Usage:     "remove a stored secret",
						UsageText: "secret delete [item]",
						Action:    secretDelete,
					},
				},
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of rtfetch",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:                 fetch,
		Flags:                  append(append([]cli.Flag{}, globalFlags...), fetchFlags...),
		UseShortOptionHandling: true,
		HideHelp:               true,
		HideVersion:            true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
