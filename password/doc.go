// Package password hashes and verifies credentials and enforces the password
// strength policy.
//
// # Output formats
//
// bcrypt hashes use the modular crypt format ($2a$<cost>$...). Argon2id
// hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// A [Vault] hashes with one configured algorithm and verifies any hash it
// recognises, so stored credentials keep working when the default changes.
// [Vault.NeedsUpgrade] reports hashes that should be rewritten on the next
// successful login.
//
// # Architecture boundaries
//
// This package owns hashing, verification and the strength policy. It does
// not store or load credentials.
//
// # What this package must NOT do
//
//   - Log plaintext passwords or hash material.
//   - Import finauth or any sibling package.
package password
