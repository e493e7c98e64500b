// Package main provides the entry point for diagsave-cli.
//
// The CLI talks to diagsave-server over HTTP:
//
//	diagsave-cli backup list my-diagram
//	diagsave-cli backup latest --raw my-diagram > diagram.json
//	diagsave-cli -o yaml autosave status my-diagram
package main
