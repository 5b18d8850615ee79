// Package loader mounts optional HTTP features on the read-only audit server.
//
// Each feature implements Feature:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// A Manager holds registered features and LoadAll mounts the enabled ones
// in registration order, stopping at the first failure.
package loader
