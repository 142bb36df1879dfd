package sqlrec

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

var stmtPool = sync.Pool{New: newStmt}

func newStmt() any {
	return &stmt{
		chunks: make(stmtChunks, 0, 8),
	}
}

func getStmt() *stmt {
	q := stmtPool.Get().(*stmt)
	q.buf = bytebufferpool.Get()
	return q
}

func reuseStmt(q *stmt) {
	q.chunks = q.chunks[:0]
	if len(q.args) > 0 {
		clear(q.args)
		q.args = q.args[:0]
	}
	q.invalidate()
	if q.buf != nil {
		bytebufferpool.Put(q.buf)
		q.buf = nil
	}
	q.pos = 0
	stmtPool.Put(q)
}
