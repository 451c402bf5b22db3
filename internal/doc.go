// Package internal holds helpers private to the tokenauth module, currently
// secure generation and validation of the opaque secrets that name token
// records.
//
// Nothing here may appear in the public tokenauth API.
package internal
