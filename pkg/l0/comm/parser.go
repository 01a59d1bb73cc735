package comm

// Parser reassembles lines from bytes received.
//
// The peer terminates lines with CRLF and never sends CR as content, so
// every CR is dropped and every LF completes a line. There is no limit on
// the length of a pending line: the peer is trusted here, the only length
// discipline is on the commands the host sends.
type Parser struct {
	buf []byte
}

// Parse consumes one byte, and returns a line when b completes one.
func (p *Parser) Parse(b byte) (line string, ok bool) {
	switch b {
	case '\n':
		line, ok = string(p.buf), true
		p.buf = p.buf[:0]
	case '\r':
	default:
		p.buf = append(p.buf, b)
	}
	return
}

// Feed consumes a chunk of bytes and returns the lines completed by it,
// in order. Bytes after the last LF stay buffered for the next chunk.
func (p *Parser) Feed(data []byte) (lines []string) {
	for _, b := range data {
		if line, ok := p.Parse(b); ok {
			lines = append(lines, line)
		}
	}
	return
}

// Buffered returns the number of bytes of an incomplete line.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset discards any incomplete line.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}
