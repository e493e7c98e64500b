// Package output renders diagsave-cli results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned tables, struct rows by json tag
//   - json.go, yaml.go: machine-readable output
package output
