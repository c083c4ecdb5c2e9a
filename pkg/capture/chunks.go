package capture

import "sync"

// ChunkBuffer is an ordered, append-only list of emitted chunks.
type ChunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

// Append stores a copy of b. Empty chunks are ignored.
func (c *ChunkBuffer) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	chunk := append([]byte(nil), b...)
	c.mu.Lock()
	c.chunks = append(c.chunks, chunk)
	c.size += len(chunk)
	c.mu.Unlock()
}

// Len returns the number of stored chunks.
func (c *ChunkBuffer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

// Size returns the total stored bytes.
func (c *ChunkBuffer) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Assemble concatenates the chunks in emission order.
func (c *ChunkBuffer) Assemble() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, 0, c.size)
	for _, chunk := range c.chunks {
		out = append(out, chunk...)
	}
	return out
}
