// Package config loads the daemon configuration from a JSON file and fills
// in defaults for anything the operator left out. Paths inside the file are
// resolved relative to the file's own directory.
package config
