// Package server exposes a vecsim.DB over HTTP with JSON bodies.
//
// Routes use net/http.ServeMux method patterns. Every request gets an
// X-Request-ID (taken from the request when present) and is logged once
// on completion. When an API key hash is configured, all routes except
// /health require "Authorization: Bearer <key>".
//
// Engine errors map to status codes: invalid input to 400, unknown keys
// to 404, exhausted memory to 507, a closed DB to 503 and everything else
// to 500. Error bodies always carry an "error" field.
package server
