package database

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor 以事务方式执行一组仓储操作
// fn 收到的 ctx 携带事务句柄，仓储通过 Conn 取得同一个事务
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// GormTransactor 基于 gorm 的事务实现
type GormTransactor struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewTransactor(db *gorm.DB, timeout time.Duration) *GormTransactor {
	return &GormTransactor{db: db, timeout: timeout}
}

// WithinTransaction fn 返回错误时回滚，否则提交
// 已经处于事务中时直接加入外层事务
func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn 返回当前事务句柄，不在事务中则返回带 ctx 的 db
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}
