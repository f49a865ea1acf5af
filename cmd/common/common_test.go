package common

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
)

func newTestContext() *cli.Context {
	app := cli.NewApp()
	app.Name = "jetta"
	app.HelpName = "jetta"
	app.Version = "test"
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	ctx := cli.NewContext(app, set, nil)
	ctx.Command = cli.Command{Name: "cmd"}
	return ctx
}

func TestInitBar(t *testing.T) {
	p := mpb.New(mpb.WithOutput(nil))
	for _, total := range []int64{100, -1} {
		bar := InitBar(p, "", total)
		if bar == nil {
			t.Fatalf("expected a bar for total %d", total)
		}
		bar.Abort(true)
	}
	p.Wait()
}

func TestPrintRuntimeErr(t *testing.T) {
	PrintRuntimeErr(nil, "cmd", "action", nil)
	PrintRuntimeErr(newTestContext(), "cmd", "action", errors.New("boom"))
}

func TestPrintStatus(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	var buf bytes.Buffer
	PrintOK(&buf, "saved %d cookies", 3)
	PrintWarning(&buf, "skipped %s", "x")
	if got := buf.String(); got != "saved 3 cookies\nskipped x\n" {
		t.Errorf("output = %q", got)
	}
}

// stubHelp records which help printer ran.
func stubHelp(t *testing.T) *[]string {
	t.Helper()
	var shown []string
	origApp, origCmd := showAppHelpAndExit, showCommandHelp
	showAppHelpAndExit = func(*cli.Context, int) { shown = append(shown, "app") }
	showCommandHelp = func(_ *cli.Context, name string) error {
		shown = append(shown, "cmd:"+name)
		return nil
	}
	t.Cleanup(func() { showAppHelpAndExit, showCommandHelp = origApp, origCmd })
	return &shown
}

func TestPrintErrHelpers(t *testing.T) {
	tests := []struct {
		name string
		call func(*cli.Context) error
		want string
	}{
		{"app help", func(c *cli.Context) error { return PrintErrWithHelp(c, errors.New("oops")) }, "app"},
		{"help flag", func(c *cli.Context) error { return PrintErrWithHelp(c, errors.New("flag: help requested")) }, "app"},
		{"command help", func(c *cli.Context) error { return PrintErrWithCmdHelp(c, errors.New("oops")) }, "cmd:cmd"},
		{"usage error", func(c *cli.Context) error { return UsageErrorCallback(c, errors.New("bad flag"), false) }, "cmd:cmd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shown := stubHelp(t)
			if err := tt.call(newTestContext()); err != nil {
				t.Fatalf("returned %v", err)
			}
			if len(*shown) != 1 || (*shown)[0] != tt.want {
				t.Errorf("help shown = %v, want [%s]", *shown, tt.want)
			}
		})
	}
	if err := PrintErrWithCmdHelp(newTestContext(), nil); err != nil {
		t.Errorf("nil error: %v", err)
	}
}

func TestHelpWithCommandArg(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	_ = set.Parse([]string{"get"})
	ctx := cli.NewContext(cli.NewApp(), set, nil)
	ctx.Command = cli.Command{Name: "help"}
	shown := stubHelp(t)

	if err := Help(ctx); err != nil {
		t.Fatalf("Help: %v", err)
	}
	if len(*shown) != 1 || (*shown)[0] != "cmd:get" {
		t.Fatalf("help shown = %v", *shown)
	}
}

func TestGetVersion(t *testing.T) {
	old := VersionCmdStr
	defer func() { VersionCmdStr = old }()
	VersionCmdStr = "jetta 1.0.0\n"
	if err := GetVersion(newTestContext()); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(VersionCmdStr, "jetta") {
		t.Fatal("version string changed")
	}
}
