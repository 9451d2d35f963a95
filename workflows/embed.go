// Package workflows ships the bundled definition tier inside the binary.
// User and project tiers override these by name.
package workflows

import "embed"

//go:embed *.yaml
var FS embed.FS
