// Package security summarizes the engine's effective security settings
// for startup logs and health reporting.
//
// # What this package must NOT do
//
//   - Expose secrets or key material.
package security
