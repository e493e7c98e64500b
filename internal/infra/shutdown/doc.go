// Package shutdown coordinates graceful process termination.
//
// Components register named hooks as they start; on SIGINT/SIGTERM (or
// context cancellation) the hooks run in reverse registration order under
// one timeout, so the last thing started is the first thing stopped.
package shutdown
