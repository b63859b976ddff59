package config

import "errors"

var (
	// ErrParsingConfig is returned when a source cannot be decoded into the config struct.
	ErrParsingConfig = errors.New("failed to parse config")

	// ErrLoadingEnvFile is returned when a dotenv file cannot be read.
	ErrLoadingEnvFile = errors.New("failed to load env file")

	// ErrReadingConfigFile is returned when a YAML config file cannot be read.
	ErrReadingConfigFile = errors.New("failed to read config file")

	// ErrNilPointer is returned when a nil pointer is provided to a loader.
	ErrNilPointer = errors.New("nil pointer provided to config loader")
)
