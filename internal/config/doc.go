// Package config handles configuration loading for chatseam.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and duration parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	messenger:
//	  verify_token: "${MESSENGER_VERIFY_TOKEN}"
//	  access_token: "${PAGE_ACCESS_TOKEN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string, which
// validation then rejects for required fields.
//
// # Duration Parsing
//
// Duration fields accept Go duration strings:
//
//	streams:
//	  heartbeat_interval: "25s"
//	  dedupe_ttl: "5m"
package config
