//go:build tools
// +build tools

// Package echochat pins tool dependencies (mockgen) in go.mod so that
// `go generate ./...` works on a fresh checkout.
package echochat

import (
	_ "go.uber.org/mock/mockgen"
)
