// Package scripts holds the Risor scripts bundled with the protopool CLI.
package scripts

import "embed"

// FS contains every bundled .risor script at its root.
//
//go:embed *.risor
var FS embed.FS
