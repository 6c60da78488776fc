package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const createRulesTable = `
	CREATE TABLE IF NOT EXISTS pricing_rules (
		id BIGINT NOT NULL,
		version VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		rule_type VARCHAR(20) NOT NULL,
		priority INT NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		effective_from DATETIME NULL,
		effective_to DATETIME NULL,
		scope JSON NOT NULL,
		conditions JSON NOT NULL,
		actions JSON NOT NULL,
		min_price DECIMAL(14,2) NULL,
		max_price DECIMAL(14,2) NULL,
		min_margin DECIMAL(7,2) NULL,
		max_margin DECIMAL(7,2) NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (version, id),
		INDEX idx_pricing_rules_active (version, active)
	);
`

// AutoMigrateRules creates the pricing_rules table, retrying once a second
// up to retries times per database.
func AutoMigrateRules(ctx context.Context, retries int, dbs ...*sql.DB) error {
	for _, db := range dbs {
		_, err := db.ExecContext(ctx, createRulesTable)
		for i := 0; err != nil && i < retries; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			_, err = db.ExecContext(ctx, createRulesTable)
		}
		if err != nil {
			return fmt.Errorf("migrate pricing_rules: %w", err)
		}
	}
	return nil
}
