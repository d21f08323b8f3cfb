// Package config loads, normalizes, and validates prdforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DEEPSEEK_API_KEY and ALIYUN_ACCESS_KEY_ID. Credentials are deliberately not
// required at load time; clients report a configuration error when they are
// first used without them.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, resolved provider defaults, and clear validation errors.
package config
