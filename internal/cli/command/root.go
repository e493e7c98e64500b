package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/diagsave-go/internal/cli/connection"
	"github.com/yndnr/diagsave-go/internal/cli/output"
	"github.com/yndnr/diagsave-go/internal/infra/buildinfo"
)

// DefaultServer is the server address used without --server.
const DefaultServer = "localhost:5480"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "diagsave-cli",
		Usage:   "Inspect and manage diagram backups on a diagsave server",
		Version: buildinfo.Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			BackupCommand(),
			AutosaveCommand(),
			SystemCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "diagsave server address (e.g., localhost:5480)",
			EnvVars: []string{"DIAGSAVE_SERVER"},
			Value:   DefaultServer,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			EnvVars: []string{"DIAGSAVE_OUTPUT"},
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: connection.DefaultTimeout,
		},
	}
}

// GlobalFlags holds the flags available to all commands.
type GlobalFlags struct {
	Server  string
	Output  output.Format
	Wide    bool
	Timeout time.Duration
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		format = output.FormatTable
	}
	return &GlobalFlags{
		Server:  c.String("server"),
		Output:  format,
		Wide:    c.Bool("wide"),
		Timeout: c.Duration("timeout"),
	}
}

// newClient builds the HTTP client from the global flags.
func newClient(c *cli.Context) (*connection.HTTPClient, context.Context, context.CancelFunc) {
	flags := ParseGlobalFlags(c)
	client := connection.NewHTTPClient(flags.Server, flags.Timeout)
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, client.Timeout())
	return client, ctx, cancel
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	return output.NewFormatter(flags.Output, flags.Wide).Format(stdout(c), data)
}

func stdout(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func stdin(c *cli.Context) io.Reader {
	if c.App.Reader != nil {
		return c.App.Reader
	}
	return os.Stdin
}

// namespaceArg returns the single NS argument.
func namespaceArg(c *cli.Context) (string, error) {
	if c.NArg() < 1 {
		return "", errors.New("namespace argument is required")
	}
	return c.Args().First(), nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
