package book

import "errors"

var (
	// ErrMalformedUpdate 表示更新未通过结构校验，由调用方记录后丢弃。
	ErrMalformedUpdate = errors.New("book: malformed update")
	// ErrStaleUpdate 表示序号不大于已应用序号，静默丢弃。
	ErrStaleUpdate = errors.New("book: stale update")
	// ErrCrossedBook 表示更新会导致 best_bid >= best_ask，更新被拒绝。
	ErrCrossedBook = errors.New("book: crossed book")
)
