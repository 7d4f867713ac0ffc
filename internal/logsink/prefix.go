package logsink

import (
	"io"
	"strconv"
	"time"
)

// Prefixer writes "[<ms> ms] " at the start of every line passed through it,
// where ms is the time elapsed since the Prefixer was created.
type Prefixer struct {
	w           io.Writer
	start       time.Time
	now         func() time.Time // for tests; default time.Now
	atLineStart bool
	scratch     [32]byte
}

// NewPrefixer returns a Prefixer writing to w.
func NewPrefixer(w io.Writer) *Prefixer {
	return newPrefixerAt(w, time.Now)
}

func newPrefixerAt(w io.Writer, now func() time.Time) *Prefixer {
	return &Prefixer{w: w, start: now(), now: now, atLineStart: true}
}

// Write forwards p, inserting the uptime prefix before each new line.
// The returned count covers p only, not the inserted prefixes.
func (p *Prefixer) Write(b []byte) (int, error) {
	n := 0
	for len(b) > 0 {
		if p.atLineStart {
			if _, err := p.w.Write(p.prefix()); err != nil {
				return n, err
			}
			p.atLineStart = false
		}

		end := len(b)
		for i, c := range b {
			if c == '\n' {
				end = i + 1
				p.atLineStart = true
				break
			}
		}

		m, err := p.w.Write(b[:end])
		n += m
		if err != nil {
			return n, err
		}
		b = b[end:]
	}
	return n, nil
}

func (p *Prefixer) prefix() []byte {
	ms := p.now().Sub(p.start).Milliseconds()
	buf := append(p.scratch[:0], '[')
	buf = strconv.AppendInt(buf, ms, 10)
	buf = append(buf, " ms] "...)
	return buf
}
