package config

import "errors"

var (
	// ErrInvalidConfig wraps a setting rejected by Validate, such as an
	// unknown backend name or a non-positive timeout.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrLoadConfig wraps a failure reading the dotenv file, the YAML file
	// named by DRIVESCORE_CONFIG, or the environment.
	ErrLoadConfig = errors.New("load config failed")
)
