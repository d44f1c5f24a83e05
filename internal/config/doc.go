// Package config provides configuration management for zapscraper.
//
// Configuration flows from three sources, in increasing precedence:
// built-in defaults (NewConfig), the optional .zapscraper YAML file
// (site-specific cookies, headers, and selector overrides), and CLI
// flags. The resulting Config is passed through the application by
// dependency injection rather than global state.
package config
