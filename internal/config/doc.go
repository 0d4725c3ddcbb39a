// Package config handles configuration loading for the agents gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; every field can be
// omitted, in which case the defaults of the reference deployment apply.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	ollama:
//	  host: "${OLLAMA_HOST}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  heartbeat_interval: "30s"
//	  liveness_grace: "90s"
//	  idle_timeout: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server and backend:
//
//	server:
//	  http_addr: "0.0.0.0:8002"
//	ollama:
//	  host: "http://localhost:11434"
//	  request_timeout: "60s"
//
// Session admission and liveness:
//
//	sessions:
//	  max_sessions: 50
//	  min_session_id_length: 3
//	  heartbeat_interval: "30s"
//	  liveness_grace: "90s"
//	  idle_timeout: "5m"
//
// Workflow policy:
//
//	workflow:
//	  agent_cap: 5
//	  on_busy: "reject"   # or "queue"
//	  queue_depth: 4
//	  retries: 2
//	  availability_cache: "60s"
//
// Agent roster, persistence, logging and telemetry:
//
//	agents:
//	  roster_path: "agents.toml"
//	database:
//	  path: "data/artifacts.db"
//	logging:
//	  level: "info"
//	  format: "json"      # or "text" for colorized output
//	  file: "logs/gateway.log"
//	telemetry:
//	  enabled: true
//	  dir: "logs"
package config
