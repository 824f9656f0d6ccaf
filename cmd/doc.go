// Package cmd provides the velto command-line interface.
//
// # Available Commands
//
//   - serve: serve static directories, with live reload in development mode
//   - config show: print the effective configuration as YAML or JSON
//   - config validate: load and validate the configuration
//   - version: print build information
//
// # Configuration
//
// Values are resolved from, highest priority first: command-line flags,
// VELTO_<SECTION>_<KEY> environment variables, and the config file. The
// config file is the --config flag, else VELTO_CONFIG_FILE, else .velto.yml
// in the working directory.
//
//	velto serve --port 3000 --static public --dev
//	VELTO_SERVER_PORT=3000 velto serve
//	velto config show --format json
package cmd
