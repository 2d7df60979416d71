package health

import (
	"context"
	"database/sql"
	"time"
)

// schemaQuery fails with undefined_table until migrations have run and
// reports how many schemes the simulator can trade in.
const schemaQuery = `SELECT COUNT(*) FROM schemes WHERE is_active`

// DatabaseChecker checks database connectivity and that the schema is in place
type DatabaseChecker struct {
	db      *sql.DB
	timeout time.Duration
}

// NewDatabaseChecker creates a new database health checker
func NewDatabaseChecker(db *sql.DB, timeout time.Duration) *DatabaseChecker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &DatabaseChecker{db: db, timeout: timeout}
}

// Check pings the pool, then queries the schemes table. A reachable database
// without the schema is unhealthy; one without seeded schemes is degraded
// because the simulation has not been started yet.
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return NewUnhealthyResult(c.Name(), err).WithDuration(time.Since(start))
	}

	var activeSchemes int
	if err := c.db.QueryRowContext(ctx, schemaQuery).Scan(&activeSchemes); err != nil {
		result := NewUnhealthyResult(c.Name(), err).WithDuration(time.Since(start))
		result.Message = "schema not migrated"
		return result
	}

	stats := c.db.Stats()
	result := NewHealthyResult(c.Name(), "connected").
		WithDuration(time.Since(start)).
		WithMetadata("active_schemes", activeSchemes).
		WithMetadata("open_connections", stats.OpenConnections).
		WithMetadata("in_use", stats.InUse).
		WithMetadata("idle", stats.Idle)

	if activeSchemes == 0 {
		result.Status = StatusDegraded
		result.Message = "no active schemes seeded"
	}

	if stats.MaxOpenConnections > 0 {
		utilization := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections)
		result = result.WithMetadata("pool_utilization", utilization)

		// simulation ticks hold connections briefly; sustained >80% means backlog
		if utilization > 0.8 {
			result.Status = StatusDegraded
			result.Message = "high connection pool utilization"
		}
	}

	return result
}

// Name returns the checker name
func (c *DatabaseChecker) Name() string {
	return "database"
}
