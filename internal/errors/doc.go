// Package errors provides structured, actionable errors for cephview.
//
// Each error has a unique code (e.g., "E100") that maps to a category, a
// short message, a longer explanation and the HTTP status the API answers
// with. The same error renders three ways:
//
//   - Format: colored multi-line output for the CLI
//   - FormatCompact: a single line for logs
//   - Body: the JSON object returned by the HTTP API
//
// # Error Categories
//
//   - session: session lookup and limits
//   - protocol: malformed or invalid commands
//   - upload: image payload storage
//   - config: configuration loading and validation
//   - server: everything else on the serving path
//
// # Usage
//
//	err := errors.New("E100").WithDetail("session " + id + " does not exist")
//	errors.WriteHTTP(w, err)
//
//	// or, in the CLI
//	errors.PrintError(err)
package errors
