// Package handler provides the HTTP request handlers for diagsave.
//
//   - backup.go: save, latest, history, load and clear
//   - autosave.go: per-diagram enable, disable and status
//   - health.go: health, readiness and version
//
// Handlers parse the request, call the backup buffer of the addressed
// namespace and wrap the result in the Response envelope. Domain errors
// are mapped to HTTP statuses by their code.
package handler
