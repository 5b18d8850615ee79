// Package server holds the audit HTTP server configuration.
//
// The serve command builds the Fiber application; this package only defines the
// listening port, the optional API key and how long catalog snapshots are cached
// between audit requests.
package server
