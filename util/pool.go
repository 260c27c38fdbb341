package util

import "sync"

// ChunkSize is the largest read taken from the network side of a
// relay in one step.
const ChunkSize = 4096

// BufPool provides reusable relay buffers, so a bridge that sees many
// short sessions does not allocate per connection.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ChunkSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
