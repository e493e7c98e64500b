package command

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/diagsave-go/internal/cli/connection"
	"github.com/yndnr/diagsave-go/internal/cli/output"
	"github.com/yndnr/diagsave-go/internal/server/httpserver/handler"
)

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	snapshotFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "Print only the diagram content",
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"O"},
			Usage:   "Write the diagram content to `FILE`",
		},
	}
	inputFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Read the diagram content from `FILE` (- for stdin)",
			Value:   "-",
		},
		&cli.StringFlag{
			Name:    "metadata",
			Aliases: []string{"m"},
			Usage:   "Editor metadata as a JSON document",
		},
	}

	return &cli.Command{
		Name:    "backup",
		Aliases: []string{"bk"},
		Usage:   "Manage diagram backups",
		Subcommands: []*cli.Command{
			{
				Name:      "latest",
				Usage:     "Show the most recent valid backup",
				ArgsUsage: "NAMESPACE",
				Flags:     snapshotFlags,
				Action:    backupLatest,
			},
			{
				Name:      "get",
				Usage:     "Show one backup by ID",
				ArgsUsage: "NAMESPACE ID",
				Flags:     snapshotFlags,
				Action:    backupGet,
			},
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List retained backups, newest first",
				ArgsUsage: "NAMESPACE",
				Action:    backupList,
			},
			{
				Name:      "save",
				Usage:     "Save a snapshot immediately",
				ArgsUsage: "NAMESPACE",
				Flags:     inputFlags,
				Action:    backupSave,
			},
			{
				Name:      "push",
				Usage:     "Submit a snapshot for a debounced save",
				ArgsUsage: "NAMESPACE",
				Flags:     inputFlags,
				Action:    backupPush,
			},
			{
				Name:      "clear",
				Usage:     "Delete every backup of a namespace",
				ArgsUsage: "NAMESPACE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation",
					},
				},
				Action: backupClear,
			},
		},
	}
}

func backupsPath(ns string) string {
	return "/v1/diagrams/" + url.PathEscape(ns) + "/backups"
}

// backupRow is one line of `backup list`.
type backupRow struct {
	ID         string    `json:"id"`
	WrittenAt  time.Time `json:"written_at"`
	CapturedAt time.Time `json:"captured_at"`
	Size       int       `json:"size"`
	Encrypted  bool      `json:"encrypted"`
	Corrupt    bool      `json:"corrupt"`
	Key        string    `json:"key" table:"wide"`
}

// snapshotSummary is the table view of a snapshot.
type snapshotSummary struct {
	ID         string          `json:"id"`
	Namespace  string          `json:"namespace"`
	CapturedAt time.Time       `json:"captured_at"`
	WrittenAt  time.Time       `json:"written_at"`
	Bytes      int             `json:"bytes"`
	Encrypted  bool            `json:"encrypted"`
	Metadata   json.RawMessage `json:"metadata"`
}

func backupLatest(c *cli.Context) error {
	ns, err := namespaceArg(c)
	if err != nil {
		return err
	}
	return showSnapshot(c, backupsPath(ns)+"/latest")
}

func backupGet(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("namespace and backup ID arguments are required")
	}
	ns, id := c.Args().Get(0), c.Args().Get(1)
	return showSnapshot(c, backupsPath(ns)+"/"+url.PathEscape(id))
}

func showSnapshot(c *cli.Context, path string) error {
	client, ctx, cancel := newClient(c)
	defer cancel()

	resp, err := client.Get(ctx, path)
	if err != nil {
		return err
	}
	var snap handler.SnapshotResponse
	if err := connection.ParseResponse(resp, &snap); err != nil {
		return err
	}

	if file := c.String("out"); file != "" {
		if err := os.WriteFile(file, []byte(snap.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
		fmt.Fprintf(stdout(c), "wrote backup %s (%d bytes) to %s\n", snap.ID, len(snap.Content), file)
		return nil
	}
	if c.Bool("raw") {
		_, err := io.WriteString(stdout(c), snap.Content)
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, snap)
	}
	return render(c, &snapshotSummary{
		ID:         snap.ID,
		Namespace:  snap.Namespace,
		CapturedAt: snap.CapturedAt,
		WrittenAt:  snap.WrittenAt,
		Bytes:      len(snap.Content),
		Encrypted:  snap.Encrypted,
		Metadata:   snap.Metadata,
	})
}

func backupList(c *cli.Context) error {
	ns, err := namespaceArg(c)
	if err != nil {
		return err
	}

	client, ctx, cancel := newClient(c)
	defer cancel()

	resp, err := client.Get(ctx, backupsPath(ns))
	if err != nil {
		return err
	}
	var list handler.ListBackupsResponse
	if err := connection.ParseResponse(resp, &list); err != nil {
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, list)
	}
	if list.Total == 0 {
		fmt.Fprintf(stdout(c), "no backups for %s\n", ns)
		return nil
	}
	rows := make([]backupRow, 0, len(list.Items))
	for _, info := range list.Items {
		rows = append(rows, backupRow{
			ID:         info.ID,
			WrittenAt:  info.WrittenAt,
			CapturedAt: info.CapturedAt,
			Size:       info.Size,
			Encrypted:  info.Encrypted,
			Corrupt:    info.Corrupt,
			Key:        info.Key,
		})
	}
	return render(c, rows)
}

func backupSave(c *cli.Context) error {
	ns, err := namespaceArg(c)
	if err != nil {
		return err
	}
	req, err := readSaveRequest(c)
	if err != nil {
		return err
	}

	client, ctx, cancel := newClient(c)
	defer cancel()

	resp, err := client.Post(ctx, backupsPath(ns), req)
	if err != nil {
		return err
	}
	var saved handler.ForceSaveResponse
	if err := connection.ParseResponse(resp, &saved); err != nil {
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable || saved.Saved == nil {
		return render(c, saved)
	}
	fmt.Fprintf(stdout(c), "saved backup %s for %s (%d bytes)\n", saved.Saved.ID, ns, saved.Saved.Size)
	return nil
}

func backupPush(c *cli.Context) error {
	ns, err := namespaceArg(c)
	if err != nil {
		return err
	}
	req, err := readSaveRequest(c)
	if err != nil {
		return err
	}

	client, ctx, cancel := newClient(c)
	defer cancel()

	resp, err := client.Post(ctx, backupsPath(ns)+"/requests", req)
	if err != nil {
		return err
	}
	var accepted handler.SaveAcceptedResponse
	if err := connection.ParseResponse(resp, &accepted); err != nil {
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, accepted)
	}
	if !accepted.Enabled {
		fmt.Fprintf(stdout(c), "autosave is disabled for %s; snapshot dropped\n", ns)
		return nil
	}
	fmt.Fprintf(stdout(c), "snapshot queued for %s\n", ns)
	return nil
}

func backupClear(c *cli.Context) error {
	ns, err := namespaceArg(c)
	if err != nil {
		return err
	}

	if !c.Bool("force") {
		ok, err := confirm(c, fmt.Sprintf("Delete all backups of %s? [y/N]: ", ns))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(stdout(c), "aborted")
			return nil
		}
	}

	client, ctx, cancel := newClient(c)
	defer cancel()

	resp, err := client.Delete(ctx, backupsPath(ns))
	if err != nil {
		return err
	}
	var cleared handler.ClearBackupsResponse
	if err := connection.ParseResponse(resp, &cleared); err != nil {
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, cleared)
	}
	fmt.Fprintf(stdout(c), "deleted %d backups of %s\n", cleared.Deleted, ns)
	return nil
}

func readSaveRequest(c *cli.Context) (*handler.SaveRequest, error) {
	var (
		content []byte
		err     error
	)
	if file := c.String("file"); file == "" || file == "-" {
		content, err = io.ReadAll(stdin(c))
	} else {
		content, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	req := &handler.SaveRequest{Content: string(content)}
	if md := strings.TrimSpace(c.String("metadata")); md != "" {
		if !json.Valid([]byte(md)) {
			return nil, errors.New("--metadata must be a JSON document")
		}
		req.Metadata = json.RawMessage(md)
	}
	return req, nil
}

func confirm(c *cli.Context, prompt string) (bool, error) {
	fmt.Fprint(stdout(c), prompt)
	line, err := bufio.NewReader(stdin(c)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
