package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const errDuplicateEntry = 1062


// Open connects to MySQL, pinging up to retries times before giving up.
func Open(ctx context.Context, dsn string, retries int, logger zerolog.Logger) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	var db *sql.DB
	for i := 0; ; i++ {
		db, err = sql.Open("mysql", cfg.FormatDSN())
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				logger.Info().Str("db", cfg.DBName).Msg("connected to mysql")
				return db, nil
			}
			db.Close()
		}
		if i >= retries {
			break
		}
		logger.Warn().Err(err).Int("attempt", i+1).Str("db", cfg.DBName).Msg("mysql not reachable, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to mysql %s at %s: %w", cfg.DBName, cfg.Addr, err)
}

// RuleRepository stores pricing rules in the pricing_rules table. Scope,
// conditions and actions live in JSON columns.
type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const selectRule = `SELECT id, name, rule_type, priority, active, effective_from, effective_to,
	scope, conditions, actions, min_price, max_price, min_margin, max_margin
	FROM pricing_rules`

// Rules implements interfaces.RuleSource. Scope and window are filtered in
// Go since scope lists are stored as JSON.
func (r *RuleRepository) Rules(ctx context.Context, q domain.RuleQuery) ([]engine.PricingRule, error) {
	rows, err := r.db.QueryContext(ctx, selectRule+` WHERE version = ? ORDER BY priority DESC, id ASC`, q.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: query rules: %v", domain.ErrRuleSourceFailed, err)
	}
	defer rows.Close()

	var out []engine.PricingRule
	for rows.Next() {
		var row ruleRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("%w: scan rule: %v", domain.ErrRuleSourceFailed, err)
		}
		rule, err := row.toRule()
		if err != nil {
			return nil, fmt.Errorf("%w: decode rule %d: %v", domain.ErrRuleSourceFailed, row.ID, err)
		}
		if q.Matches(rule) {
			out = append(out, rule)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRuleSourceFailed, err)
	}
	return out, nil
}

// Rule implements interfaces.RuleStore.
func (r *RuleRepository) Rule(ctx context.Context, version string, id int64) (engine.PricingRule, error) {
	var row ruleRow
	err := r.db.QueryRowContext(ctx, selectRule+` WHERE version = ? AND id = ?`, version, id).Scan(row.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.PricingRule{}, fmt.Errorf("%w: %d in %s", domain.ErrRuleNotFound, id, version)
		}
		return engine.PricingRule{}, fmt.Errorf("%w: %v", domain.ErrRuleSourceFailed, err)
	}
	return row.toRule()
}

func (r *RuleRepository) CreateRule(ctx context.Context, version string, rule engine.PricingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	row, err := fromRule(rule)
	if err != nil {
		return err
	}
	query := `INSERT INTO pricing_rules (id, version, name, rule_type, priority, active, effective_from, effective_to,
		scope, conditions, actions, min_price, max_price, min_margin, max_margin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query, append([]any{row.ID, version}, row.values()...)...)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
		return fmt.Errorf("%w: %d in %s", domain.ErrDuplicateRule, rule.ID, version)
	}
	return err
}

// SaveRule replaces an existing rule.
func (r *RuleRepository) SaveRule(ctx context.Context, version string, rule engine.PricingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	row, err := fromRule(rule)
	if err != nil {
		return err
	}
	query := `UPDATE pricing_rules SET name = ?, rule_type = ?, priority = ?, active = ?, effective_from = ?, effective_to = ?,
		scope = ?, conditions = ?, actions = ?, min_price = ?, max_price = ?, min_margin = ?, max_margin = ?
		WHERE version = ? AND id = ?`
	res, err := r.db.ExecContext(ctx, query, append(row.values(), version, row.ID)...)
	if err != nil {
		return fmt.Errorf("%w: update rule %d: %v", domain.ErrRuleSourceFailed, rule.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 for unchanged rows too; tell the cases apart.
		if _, err := r.Rule(ctx, version, rule.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *RuleRepository) DeleteRule(ctx context.Context, version string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pricing_rules WHERE version = ? AND id = ?`, version, id)
	if err != nil {
		return fmt.Errorf("%w: delete rule %d: %v", domain.ErrRuleSourceFailed, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d in %s", domain.ErrRuleNotFound, id, version)
	}
	return nil
}

// ruleRow is the column form of a rule.
type ruleRow struct {
	ID            int64
	Name          string
	Type          string
	Priority      int
	Active        bool
	EffectiveFrom sql.NullTime
	EffectiveTo   sql.NullTime
	Scope         []byte
	Conditions    []byte
	Actions       []byte
	MinPrice      decimal.NullDecimal
	MaxPrice      decimal.NullDecimal
	MinMargin     decimal.NullDecimal
	MaxMargin     decimal.NullDecimal
}

func (row *ruleRow) dest() []any {
	return []any{
		&row.ID, &row.Name, &row.Type, &row.Priority, &row.Active,
		&row.EffectiveFrom, &row.EffectiveTo,
		&row.Scope, &row.Conditions, &row.Actions,
		&row.MinPrice, &row.MaxPrice, &row.MinMargin, &row.MaxMargin,
	}
}

// values lists the columns after id and version, in insert order.
func (row ruleRow) values() []any {
	return []any{
		row.Name, row.Type, row.Priority, row.Active,
		row.EffectiveFrom, row.EffectiveTo,
		row.Scope, row.Conditions, row.Actions,
		row.MinPrice, row.MaxPrice, row.MinMargin, row.MaxMargin,
	}
}

func (row ruleRow) toRule() (engine.PricingRule, error) {
	rule := engine.PricingRule{
		ID:        row.ID,
		Name:      row.Name,
		Type:      engine.RuleType(row.Type),
		Priority:  row.Priority,
		Active:    row.Active,
		MinPrice:  nullDecimal(row.MinPrice),
		MaxPrice:  nullDecimal(row.MaxPrice),
		MinMargin: nullDecimal(row.MinMargin),
		MaxMargin: nullDecimal(row.MaxMargin),
	}
	if row.EffectiveFrom.Valid {
		t := row.EffectiveFrom.Time.UTC()
		rule.EffectiveFrom = &t
	}
	if row.EffectiveTo.Valid {
		t := row.EffectiveTo.Time.UTC()
		rule.EffectiveTo = &t
	}
	if err := decodeColumn("scope", row.Scope, &rule.Scope); err != nil {
		return engine.PricingRule{}, err
	}
	if err := decodeColumn("conditions", row.Conditions, &rule.Conditions); err != nil {
		return engine.PricingRule{}, err
	}
	if err := decodeColumn("actions", row.Actions, &rule.Actions); err != nil {
		return engine.PricingRule{}, err
	}
	return rule, nil
}

func fromRule(rule engine.PricingRule) (ruleRow, error) {
	row := ruleRow{
		ID:        rule.ID,
		Name:      rule.Name,
		Type:      string(rule.Type),
		Priority:  rule.Priority,
		Active:    rule.Active,
		MinPrice:  toNullDecimal(rule.MinPrice),
		MaxPrice:  toNullDecimal(rule.MaxPrice),
		MinMargin: toNullDecimal(rule.MinMargin),
		MaxMargin: toNullDecimal(rule.MaxMargin),
	}
	if rule.EffectiveFrom != nil {
		row.EffectiveFrom = sql.NullTime{Time: rule.EffectiveFrom.UTC(), Valid: true}
	}
	if rule.EffectiveTo != nil {
		row.EffectiveTo = sql.NullTime{Time: rule.EffectiveTo.UTC(), Valid: true}
	}
	var err error
	if row.Scope, err = json.Marshal(rule.Scope); err != nil {
		return ruleRow{}, err
	}
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []engine.RuleCondition{}
	}
	if row.Conditions, err = json.Marshal(conditions); err != nil {
		return ruleRow{}, err
	}
	actions := rule.Actions
	if actions == nil {
		actions = []engine.RuleAction{}
	}
	if row.Actions, err = json.Marshal(actions); err != nil {
		return ruleRow{}, err
	}
	return row, nil
}

func decodeColumn(name string, data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("column %s: %w", name, err)
	}
	return nil
}

func nullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
