// Package config loads chainkit configuration with Viper.
//
// Values come from a config.yml (found in the standard search paths or
// given explicitly), then environment variables, then an optional .env
// file. Nested keys bind from underscore-separated env names, so
// SCHEDULER_MAX_PARALLEL overrides scheduler.max_parallel.
//
//	var cfg config.AppConfig
//	err := config.LoadConfig("chainkit", &cfg, config.WithConfigFile(path))
//	cfg.ApplyDefaults()
//	err = cfg.Validate()
package config
