// Package gateway is the only write path into durable counter columns.
//
// Each write is one UPDATE statement against one row. After a successful
// write the entity's cached read-model is invalidated so the next read
// reloads the new column value.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/unkn0wn-root/tally"
)

var (
	ErrRowNotFound   = errors.New("gateway: row not found")
	ErrUnknownColumn = errors.New("gateway: unknown column")
)

// Invalidator drops the cached read-model of one entity.
// *readmodel.Cache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

type Config struct {
	DB       *gorm.DB
	Table    string   // e.g. "profiles"
	IDColumn string   // defaults to "id"
	Columns  []string // counter columns this gateway may write

	Invalidator Invalidator  // optional
	Logger      tally.Logger // if nil, NopLogger is used
}

type Gateway struct {
	db       *gorm.DB
	table    string
	idColumn string
	columns  map[string]struct{}
	inv      Invalidator
	log      tally.Logger
}

func New(cfg Config) (*Gateway, error) {
	if cfg.DB == nil {
		return nil, errors.New("gateway: db is required")
	}
	if cfg.Table == "" || len(cfg.Columns) == 0 {
		return nil, errors.New("gateway: table and at least one column are required")
	}
	g := &Gateway{
		db:       cfg.DB,
		table:    cfg.Table,
		idColumn: cfg.IDColumn,
		columns:  make(map[string]struct{}, len(cfg.Columns)),
		inv:      cfg.Invalidator,
		log:      cfg.Logger,
	}
	if g.idColumn == "" {
		g.idColumn = "id"
	}
	if g.log == nil {
		g.log = tally.NopLogger{}
	}
	for _, c := range cfg.Columns {
		g.columns[c] = struct{}{}
	}
	return g, nil
}

// UpdateColumn runs UPDATE <table> SET <column> = value WHERE <id> = id.
// Errors from the database are returned; a failed invalidation is only logged.
func (g *Gateway) UpdateColumn(ctx context.Context, column, id string, value int64) error {
	if _, ok := g.columns[column]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	res := g.db.WithContext(ctx).
		Table(g.table).
		Where(clauseEq(g.idColumn), id).
		UpdateColumn(column, value)
	if res.Error != nil {
		return fmt.Errorf("update %s.%s for %q: %w", g.table, column, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %q", ErrRowNotFound, g.table, id)
	}

	if g.inv != nil {
		if err := g.inv.Invalidate(ctx, id); err != nil {
			g.log.Warn("read-model invalidation after row update failed", tally.Fields{
				"table": g.table, "column": column, "id": id, "err": err,
			})
		}
	}
	return nil
}

// ReadColumn returns the durable value of column for id.
func (g *Gateway) ReadColumn(ctx context.Context, column, id string) (int64, error) {
	if _, ok := g.columns[column]; !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	var vals []int64
	err := g.db.WithContext(ctx).
		Table(g.table).
		Where(clauseEq(g.idColumn), id).
		Limit(1).
		Pluck(column, &vals).Error
	if err != nil {
		return 0, fmt.Errorf("read %s.%s for %q: %w", g.table, column, id, err)
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrRowNotFound, g.table, id)
	}
	return vals[0], nil
}

// Writer binds UpdateColumn to one column for registration with a tally.Reconciler.
func (g *Gateway) Writer(column string) tally.RowWriter {
	return func(ctx context.Context, id string, value int64) error {
		return g.UpdateColumn(ctx, column, id, value)
	}
}

// Reader binds ReadColumn to one column.
func (g *Gateway) Reader(column string) tally.RowReader {
	return func(ctx context.Context, id string) (int64, error) {
		return g.ReadColumn(ctx, column, id)
	}
}

// Counter builds the registration entry for one counter backed by column.
func (g *Gateway) Counter(name, column string) tally.Counter {
	return tally.Counter{Name: name, Column: column, Read: g.Reader(column), Write: g.Writer(column)}
}

func clauseEq(column string) string { return column + " = ?" }
