package command

import (
	"net/http"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/diagsave-go/internal/cli/connection"
	"github.com/yndnr/diagsave-go/internal/core/service"
)

// AutosaveCommand returns the autosave subcommand group.
func AutosaveCommand() *cli.Command {
	return &cli.Command{
		Name:  "autosave",
		Usage: "Toggle debounced saving per diagram",
		Subcommands: []*cli.Command{
			{
				Name:      "enable",
				Usage:     "Resume debounced saves",
				ArgsUsage: "NAMESPACE",
				Action:    autosaveAction(http.MethodPost, "/enable"),
			},
			{
				Name:      "disable",
				Usage:     "Suspend debounced saves; forced saves still apply",
				ArgsUsage: "NAMESPACE",
				Action:    autosaveAction(http.MethodPost, "/disable"),
			},
			{
				Name:      "status",
				Usage:     "Show autosave state",
				ArgsUsage: "NAMESPACE",
				Action:    autosaveAction(http.MethodGet, ""),
			},
		},
	}
}

func autosaveAction(method, suffix string) cli.ActionFunc {
	return func(c *cli.Context) error {
		ns, err := namespaceArg(c)
		if err != nil {
			return err
		}

		client, ctx, cancel := newClient(c)
		defer cancel()

		path := "/v1/diagrams/" + url.PathEscape(ns) + "/autosave" + suffix
		var resp *http.Response
		if method == http.MethodPost {
			resp, err = client.Post(ctx, path, nil)
		} else {
			resp, err = client.Get(ctx, path)
		}
		if err != nil {
			return err
		}

		var st service.BufferStatus
		if err := connection.ParseResponse(resp, &st); err != nil {
			return err
		}
		return render(c, st)
	}
}
