package dbctx

import (
	"context"

	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/pkg/ctxutil"
)

// Context carries a request context plus an optional transaction handle.
// Repos accept it on every method so callers can group writes in a
// transaction without a second method set.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Conn returns the transaction when one is set, otherwise fallback, with
// the request context applied.
func (c Context) Conn(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	return db.WithContext(ctxutil.Default(c.Ctx))
}
