// Package assets embeds the files shipped inside the binary.
package assets

import _ "embed"

//go:embed config.yaml
var DefaultConfig []byte

//go:embed icon.svg
var Icon []byte
