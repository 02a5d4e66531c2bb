// Package tidal talks to the Tidal web API on behalf of the reconciliation
// engine.
//
// The client covers the catalog operations sync and recover need: track
// search, playlist creation and membership, and folder placement through the
// v2 collection endpoints. Sessions come from the OAuth device-code flow and
// are persisted to a JSON token file readable only by the owner; expired
// access tokens are refreshed transparently.
//
// HTTP status codes are classified onto the services error markers so callers
// can use errors.Is: 404 becomes services.ErrNotFound, 401 and 403 become
// services.ErrAuthentication, 429 and 5xx become services.ErrTransient.
package tidal
