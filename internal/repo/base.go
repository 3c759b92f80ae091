// Package repo holds the gorm plumbing shared by the showroom repositories.
package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/dealerhub/showroom/pkg/db"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
)

type txKey struct{}

// txScope lets the context stored on a tx point back at that same tx.
type txScope struct {
	tx *gorm.DB
}

// Base is embedded by gorm-backed repositories. Calls made with a context
// returned by Transaction join that transaction instead of the pool.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the handle for ctx: the ambient transaction if there is one,
// otherwise the pool bound to ctx. A nil ctx yields the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	if scope, ok := ctx.Value(txKey{}).(*txScope); ok {
		return scope.tx
	}
	return b.db.WithContext(ctx)
}

// Transaction runs fn in one transaction. The tx handed to fn is bound to a
// context carrying it, so repository calls made with tx.Statement.Context join
// it, and so does a nested Transaction.
func (b Base) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if scope, ok := ctx.Value(txKey{}).(*txScope); ok {
		return fn(scope.tx)
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := &txScope{}
		scope.tx = tx.WithContext(context.WithValue(ctx, txKey{}, scope))
		return fn(scope.tx)
	})
}

// LoadError classifies a single-row lookup failure for entity: a missing row
// becomes NOT_FOUND, anything else an internal error.
func LoadError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("load %s", entity))
}
