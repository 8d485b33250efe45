// Package config loads and validates the declared topology.
//
// A topology file is YAML with one section per resource kind plus pass
// settings and the state backend. Validation happens entirely before
// planning: duplicate names, dangling references, and malformed values
// all surface as a single *Error listing every issue, and no provider
// call is made for an invalid declaration.
package config
