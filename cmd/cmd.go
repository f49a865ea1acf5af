package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"

	"github.com/danielbankhead/jetta/cmd/common"
	rootcommon "github.com/danielbankhead/jetta/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var globalFlags = []cli.Flag{
	cli.StringFlag{Name: "config-dir", Usage: "directory holding config.yaml and the cookie jar", EnvVar: rootcommon.ConfigDirEnv},
	cli.BoolFlag{Name: "debug", Usage: "log every hop to stderr"},
	cli.StringFlag{Name: "log-format", Usage: "text or json"},
}

func Execute(args []string, bArgs BuildArgs) error {
	if bArgs.Version != "" {
		rootcommon.Version = bArgs.Version
	}
	app := cli.App{
		Name:                  "jetta",
		HelpName:              "jetta",
		Usage:                 "Fetch URLs with limits, redirects and a persistent cookie jar.",
		Version:               fmt.Sprintf("%s-%s", rootcommon.Version, bArgs.BuildType),
		UsageText:             "jetta [global options] <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Flags:                 globalFlags,
		Commands: []cli.Command{
			{
				Name:                   "get",
				Aliases:                []string{"g"},
				Usage:                  "request a URL and print or save the body",
				UsageText:              "get [options] <url>",
				Description:            GetDescription,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 get,
				Flags:                  getFlags,
				UseShortOptionHandling: true,
			},
			cookiesCommand(),
			suffixCommand(),
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of jetta",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:      common.Help,
		HideHelp:    true,
		HideVersion: true,
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
