// Package connection is the HTTP client diagsave-cli uses to reach a
// diagsave server. Responses are unwrapped from the server's JSON
// envelope; failures surface as *APIError with the server error code.
package connection
