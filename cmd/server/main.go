/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the capacity governance engine. The serve command
  runs the HTTP API; check and project run the engine once over local
  YAML/JSON files without a database.

COMMANDS:
  serve     Start the HTTP server (config from env / .env, flags override)
  check     Run one admission check: check proposal.yaml --governance g.yaml --commitments c.yaml
  project   Print bucket projections: project commitments.yaml --scheme fiscal

CONFIGURATION (serve):
  Environment variables, optionally from .env and .env.local:
    PORT, DB_PATH, LOG_LEVEL, LOG_FORMAT, METRICS_ENABLED,
    CORS_ALLOWED_ORIGINS, RATE_LIMIT_ENABLED, RATE_LIMIT_VALIDATE,
    ALERT_MONITOR_ENABLED, ALERT_MONITOR_INTERVAL, SCENARIO_DIR

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the alert monitor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/capacity.db

  # Run in memory with a demo scenario preloaded
  ./server serve --store=memory --scenario=client-crunch

  # One-off admission check
  ./server check proposal.yaml --governance governance.yaml --commitments commitments.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
