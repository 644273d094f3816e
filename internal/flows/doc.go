// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRequireSession, RunResetPassword, etc.)
// accepts a typed dependency struct and returns results without side effects
// beyond those dependencies. Tests drive flows with in-memory fakes and keep
// the Engine type thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user provider, credential vault,
// PII protector, session store, reset store, limiters, audit and metrics.
// They do NOT own any of these resources; ownership stays with the Engine.
//
// Flows never log or audit plaintext passwords, raw emails, session ids or
// reset tokens.
package flows
