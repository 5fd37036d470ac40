// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Secrets such as approval keys and database passwords are normally supplied
// this way, often from a .env file loaded by the command.
package config
