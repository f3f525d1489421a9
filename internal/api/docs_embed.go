//go:build embed_openapi

package api

import "loadplan/openapi"

// openAPILoad returns the contract compiled into the binary.
func openAPILoad() ([]byte, error) { return openapi.Spec, nil }
