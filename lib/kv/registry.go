package kv

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Backend Registry
// --------------------------------------------------------------------------

// Factory creates a backend instance from a JSON configuration string.
type Factory func(config string) (Database, Status)

// RecoverFactory reconstructs a backend from migration snapshot files
// located under root.
type RecoverFactory func(config, migrationConfig, root string, files []string) (Database, Status)

type registration struct {
	factory Factory
	recover RecoverFactory
}

// backends maps backend type names to their factories. It is populated by
// RegisterBackend calls from the engine packages' init functions and only
// read afterwards.
var backends = xsync.NewMapOf[string, registration]()

// RegisterBackend makes a backend type available to MakeDatabase and
// RecoverDatabase. recover may be nil for backends without snapshot
// support. Registering the same name twice overwrites the previous entry.
//
// Thread-safety: this function is thread-safe, though it is normally called
// from package init functions only.
func RegisterBackend(name string, factory Factory, recoverFn RecoverFactory) {
	backends.Store(name, registration{factory: factory, recover: recoverFn})
}

// HasBackendType reports whether a backend type name is registered.
func HasBackendType(name string) bool {
	_, ok := backends.Load(name)
	return ok
}

// BackendTypes returns the registered backend type names.
func BackendTypes() []string {
	var names []string
	backends.Range(func(name string, _ registration) bool {
		names = append(names, name)
		return true
	})
	return names
}

// MakeDatabase instantiates a backend of the given type from a JSON
// configuration string. Unknown types yield StatusInvalidType.
func MakeDatabase(backendType, config string) (Database, Status) {
	reg, ok := backends.Load(backendType)
	if !ok {
		return nil, StatusInvalidType
	}
	return reg.factory(config)
}

// RecoverDatabase reconstructs a backend of the given type from migration
// snapshot files under root. Backends without snapshot support yield
// StatusNotSupported.
func RecoverDatabase(backendType, config, migrationConfig, root string, files []string) (Database, Status) {
	reg, ok := backends.Load(backendType)
	if !ok {
		return nil, StatusInvalidType
	}
	if reg.recover == nil {
		return nil, StatusNotSupported
	}
	return reg.recover(config, migrationConfig, root, files)
}
