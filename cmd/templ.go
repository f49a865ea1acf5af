package cmd

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}

Global Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`

const DESCRIPTION = `
jetta fetches http, https, ftp, ftps, sftp, data and file URLs with
explicit limits on time, size and redirects, and keeps an RFC 6265
cookie jar encrypted on disk between runs.
`

const (
	GetDescription = `The get command requests a URL, follows redirects
within the configured limit and prints the body to stdout
or saves it to a file. Cookies from the persistent jar are
sent and Set-Cookie headers are stored back unless --no-jar
is given.

Example:
        jetta get https://example.com/
        jetta get -o page.html --checksum sha256 https://example.com/
        jetta get --json '{"q":1}' -H "X-Trace: 1" https://api.example.com/
        jetta get --input-file urls.txt --output-dir ./out

`
	CookiesDescription = `The cookies command maintains the persistent cookie jar.

Example:
        jetta cookies list --domain example.com
        jetta cookies add https://example.com/ "sid=abc; Path=/; Secure"
        jetta cookies delete example.com / sid
        jetta cookies export > jar.json
        jetta cookies import-browser ~/.mozilla/firefox/x.default/cookies.sqlite

`
	SuffixDescription = `The suffix command queries the public suffix list.

Example:
        jetta suffix check co.uk github.io example.com

`
)
