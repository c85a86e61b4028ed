// Package config handles configuration loading for the fleet gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// Unset fields fall back to defaults before validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FLEET_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/bot-fleet/gateway.yaml (or ~/.config/bot-fleet/gateway.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${FLEET_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//
//	database:
//	  path: "/var/lib/bot-fleet/fleet.db"
//
//	auth:
//	  jwt_secret: "${FLEET_JWT_SECRET}"   # at least 32 bytes
//	  token_ttl: "12h"
//
//	agents:
//	  connect_timeout: "30s"
//	  sweep_interval: "60s"
//	  task_timeout: "10s"
//	  default_port: 25565
//	  name_prefix: "NoobBot_"
//	  log_capacity: 1000
//
//	bridge:
//	  addr: "127.0.0.1:7700"   # protocol bridge sidecar
//
//	behaviors:                 # omit for the default set
//	  - name: chat
//	    base: "20m"
//	    spread: "20m"
//	    options:
//	      messages: "hello!|anyone around?"
//	  - name: combat
//	    base: "2s"
//	    spread: "3s"
//	    enabled: false
//
//	rate_limit:
//	  requests: 100
//	  window: "15m"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
//	nats:
//	  url: ""                       # empty disables publishing
//	  subject_prefix: "fleet.agents"
package config
