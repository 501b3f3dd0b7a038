// Package users persists the list of people allowed through the
// bridge, with two drivers:
//
//   - "yaml": a human-editable users.yaml file (default)
//   - "sqlite": a SQLite database for deployments that script the list
//
// The auth gate holds the entries in memory; this package only loads
// and saves them. External edits to the yaml file can be picked up at
// runtime via the Watcher.
package users
