// Package config loads typed configuration from the environment and from
// YAML documents.
//
// Environment values are parsed with caarlos0/env into structs tagged with
// `env` and `envDefault`. A ".env" file in the working directory is loaded
// once before the first parse. Parsed structs are cached per type.
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// Structured documents that do not map well to flat variables (for example
// per-provider authentication settings) are read with LoadFile, which decodes
// YAML over whatever defaults the target already carries.
package config
