// Package config loads gormock configuration with Viper.
//
// Configuration comes from an optional YAML file (<name>.yml searched in
// the working directory, testdata/ and two parents), an optional .env file
// loaded with godotenv, and prefixed environment variables. Nested keys are
// reachable from the environment by joining path segments with
// underscores:
//
//	GORMOCK_STORE_TEMP_DIR=/dev/shm
//	GORMOCK_LOGGING_LEVEL=debug
//
// # Usage
//
//	var cfg mock.Config
//	if err := config.Load("gormock", &cfg); err != nil { ... }
package config
