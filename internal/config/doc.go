// Package config loads server configuration from an optional YAML file and
// the environment. Precedence is flags > environment > file > defaults;
// the flag layer is applied by the cmd package.
package config
