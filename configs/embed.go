// Package configs embeds the configuration template written by
// `parley config init`.
package configs

import _ "embed"

// UserConfigTemplate is written to ~/.config/parley/config.yaml. Every key is
// optional; omitted keys keep their built-in defaults.
//
//go:embed config.example.yaml
var UserConfigTemplate string
