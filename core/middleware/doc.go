// Package middleware groups the HTTP middleware of the audit server.
//
//   - auth: API key check on the X-API-Key header.
//   - rayid: a per-request ID stored in Locals("ray_id") and echoed in X-Ray-ID.
//
// RayID is registered first so every later log line can carry it.
package middleware
