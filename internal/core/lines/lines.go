// Package lines reassembles newline-delimited records from arbitrarily
// chunked input
package lines

import "bytes"

// Reassembler holds the unterminated tail between chunks. The zero value is ready to use.
type Reassembler struct {
	acc []byte
}

// Push appends chunk and returns the longest prefix that ends at the last line
// terminator ('\n', or '\r' when the buffer has no '\n'). It returns nil when no
// terminator has been seen; the remainder stays buffered. A '\r' that ends the
// buffer is held back since the next chunk may start with its '\n'.
func (r *Reassembler) Push(chunk []byte) []byte {
	r.acc = append(r.acc, chunk...)

	p := bytes.LastIndexByte(r.acc, '\n')
	if p < 0 {
		p = bytes.LastIndexByte(r.acc, '\r')
		if p == len(r.acc)-1 {
			p = bytes.LastIndexByte(r.acc[:p], '\r')
		}
	}
	if p < 0 {
		return nil
	}

	out := make([]byte, p+1)
	copy(out, r.acc[:p+1])
	r.acc = append(r.acc[:0], r.acc[p+1:]...)
	return out
}

// Flush returns whatever is buffered, terminated or not, and resets the buffer
func (r *Reassembler) Flush() []byte {
	if len(r.acc) == 0 {
		return nil
	}
	out := r.acc
	r.acc = nil
	return out
}

// Pending is the number of buffered bytes
func (r *Reassembler) Pending() int { return len(r.acc) }

// Split breaks text into physical lines. "\r\n", "\n" and a lone '\r' each end
// one line; empty lines are kept so callers can number lines as a reader sees
// them. A final terminator does not open another line.
func Split(text []byte) [][]byte {
	var out [][]byte
	for len(text) > 0 {
		i := bytes.IndexAny(text, "\r\n")
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i])
		if text[i] == '\r' && i+1 < len(text) && text[i+1] == '\n' {
			i++
		}
		text = text[i+1:]
	}
	return out
}
