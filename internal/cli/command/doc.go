// Package command defines the diagsave-cli commands on urfave/cli/v2.
//
//   - root.go: App, global flags, client and output helpers
//   - backup.go: backup latest|get|list|save|push|clear
//   - autosave.go: autosave enable|disable|status
//   - system.go: health and version
//
// Flags go before positional arguments: `backup save --file d.bpmn NS`.
package command
