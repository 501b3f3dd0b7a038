// Package config loads the bridge configuration.
//
// Files may be YAML or JSON; YAML is coerced to JSON first so both
// formats share one strict decoder (unknown fields are errors).
// Durations are Go duration strings ("500ms", "10s").
package config
