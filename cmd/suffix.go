package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"github.com/danielbankhead/jetta/cmd/common"
	"github.com/danielbankhead/jetta/pkg/publicsuffix"
	"github.com/danielbankhead/jetta/pkg/urlutil"
)

var suffixCheckFlags = []cli.Flag{
	cli.BoolFlag{Name: "live", Usage: "use the downloaded list instead of the embedded one"},
	cli.DurationFlag{Name: "wait", Value: 30 * time.Second, Usage: "how long to wait for the live list"},
}

func suffixCommand() cli.Command {
	return cli.Command{
		Name:               "suffix",
		Aliases:            []string{"s"},
		Usage:              "query the public suffix list",
		Description:        SuffixDescription,
		OnUsageError:       common.UsageErrorCallback,
		CustomHelpTemplate: CMD_HELP_TEMPL,
		Subcommands: []cli.Command{
			{
				Name:               "check",
				Usage:              "report whether domains are public suffixes",
				UsageText:          "suffix check <domain>...",
				Action:             suffixCheck,
				Flags:              suffixCheckFlags,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
			},
		},
	}
}

func suffixCheck(ctx *cli.Context) error {
	domains := ctx.Args()
	if len(domains) == 0 {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no domain provided"))
	}
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var checker publicsuffix.Checker = publicsuffix.Static{}
	source := "embedded"
	if ctx.Bool("live") {
		e, err := s.newEngine()
		if err != nil {
			return err
		}
		defer e.Close()
		if err := s.fs.MkdirAll(s.settings.Dir, 0700); err != nil {
			return err
		}
		list := s.suffixList(e)
		defer list.Close()
		if err := waitSuffixList(list, ctx.Duration("wait")); err != nil {
			return fmt.Errorf("public suffix list: %w", err)
		}
		checker = list
		source = fmt.Sprintf("%d rules, updated %s", list.Len(), list.LastUpdated().Format(time.RFC3339))
	}
	fmt.Fprintf(stderr, "list: %s\n", source)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, d := range domains {
		n := urlutil.Normalize("http://"+d, urlutil.Options{})
		if !n.IsValid {
			fmt.Fprintf(tw, "%s\tinvalid\n", d)
			continue
		}
		ok, err := checker.IsPublicSuffix(n.Hostname)
		if err != nil {
			return err
		}
		verdict := "not a public suffix"
		if ok {
			verdict = "public suffix"
		}
		fmt.Fprintf(tw, "%s\t%s\n", n.Hostname, verdict)
	}
	return tw.Flush()
}
