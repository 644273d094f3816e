// Package middleware adapts finauth.Engine to net/http.
//
// # Guards
//
//   - [RequireBearer]: validates an "Authorization: Bearer" token.
//   - [RequireSession]: resolves the session cookie.
//
// Each guard injects the authenticated [finauth.Identity] into the request
// context, retrievable with [IdentityFromContext]. Rejections are written
// as JSON {"detail": ...} with a status derived from [finauth.Classify].
//
// This package makes no authentication decisions of its own; every
// decision is delegated to the engine.
package middleware
