// Package errs defines the run-level error taxonomy. Each kind is a sentinel
// wrapped with fmt.Errorf so callers can classify with errors.Is while still
// getting a readable message at the point of failure.
package errs

import "errors"

var (
	// ErrConfig marks missing or contradictory configuration; fatal at startup.
	ErrConfig = errors.New("config error")

	// ErrPathOutsideProject marks a write or read attempted outside projectRoot.
	ErrPathOutsideProject = errors.New("path outside project")

	// ErrMcpTimeout marks a per-call MCP timeout.
	ErrMcpTimeout = errors.New("mcp call timed out")

	// ErrMcpProtocol marks a malformed or mismatched MCP response.
	ErrMcpProtocol = errors.New("mcp protocol error")

	// ErrMcpDisconnected marks a dead MCP subprocess.
	ErrMcpDisconnected = errors.New("mcp disconnected")

	// ErrLlmRateLimited marks an LLM call that exhausted its retry budget.
	ErrLlmRateLimited = errors.New("llm rate limited")

	// ErrLlmUnparseable marks an LLM response that could not be coerced to JSON.
	ErrLlmUnparseable = errors.New("llm response unparseable")

	// ErrSubprocess wraps a non-zero exit from git, the agent backend, or an init hook.
	ErrSubprocess = errors.New("subprocess error")

	// ErrEvaluationFailed marks a degraded verdict produced after an unrecoverable
	// evaluation failure (browser subprocess death, unparseable final scoring).
	ErrEvaluationFailed = errors.New("evaluation failed")

	// ErrRunFatal wraps any other condition from which the run cannot continue.
	ErrRunFatal = errors.New("run fatal")
)
