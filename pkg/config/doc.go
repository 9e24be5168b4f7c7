// Package config provides viper-layered configuration loading for
// both the cascade-gateway and cascade-worker binaries: environment
// variables override config.yml, which overrides built-in defaults.
package config
