package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/diagsave-go/internal/cli/connection"
	"github.com/yndnr/diagsave-go/internal/cli/output"
	"github.com/yndnr/diagsave-go/internal/infra/buildinfo"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server status commands",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server health and readiness",
				Action: systemHealth,
			},
			{
				Name:   "diagrams",
				Usage:  "List namespaces with an active buffer",
				Action: systemDiagrams,
			},
		},
	}
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show client and server build information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "client",
				Usage: "Skip querying the server",
			},
		},
		Action: showVersion,
	}
}

type healthRow struct {
	Check  string `json:"check"`
	Status string `json:"status"`
	Target string `json:"target"`
}

func systemHealth(c *cli.Context) error {
	client, ctx, cancel := newClient(c)
	defer cancel()

	rows := make([]healthRow, 0, 2)
	var failed bool
	for _, check := range []string{"health", "ready"} {
		row := healthRow{Check: check, Target: client.BaseURL()}

		var result struct {
			Status string `json:"status"`
		}
		resp, err := client.Get(ctx, "/"+check)
		if err == nil {
			err = connection.ParseResponse(resp, &result)
		}
		if err != nil {
			row.Status = err.Error()
			failed = true
		} else {
			row.Status = result.Status
		}
		rows = append(rows, row)
	}

	if err := render(c, rows); err != nil {
		return err
	}
	if failed {
		return cli.Exit("server unhealthy", 1)
	}
	return nil
}

func systemDiagrams(c *cli.Context) error {
	client, ctx, cancel := newClient(c)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/diagrams")
	if err != nil {
		return err
	}
	var list struct {
		Items []string `json:"items"`
		Total int      `json:"total"`
	}
	if err := connection.ParseResponse(resp, &list); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, list)
	}
	return render(c, list.Items)
}

type versionRow struct {
	Component string `json:"component"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version" table:"wide"`
	Platform  string `json:"platform" table:"wide"`
}

func newVersionRow(component string, info buildinfo.Info) versionRow {
	return versionRow{
		Component: component,
		Version:   info.Version,
		Commit:    info.Commit,
		BuildTime: info.BuildTime,
		GoVersion: info.GoVersion,
		Platform:  info.Platform,
	}
}

func showVersion(c *cli.Context) error {
	rows := []versionRow{newVersionRow("client", buildinfo.Get())}

	if !c.Bool("client") {
		client, ctx, cancel := newClient(c)
		defer cancel()

		var server buildinfo.Info
		resp, err := client.Get(ctx, "/version")
		if err == nil {
			err = connection.ParseResponse(resp, &server)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: server version unavailable: %v\n", err)
		} else {
			rows = append(rows, newVersionRow("server", server))
		}
	}
	return render(c, rows)
}
