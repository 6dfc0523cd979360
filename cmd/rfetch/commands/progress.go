package commands

import (
	"github.com/cheggaaa/pb/v3"
)

// barProgress renders engine progress as a terminal progress bar. A total of
// -1 (unknown size) degrades to a running byte counter.
type barProgress struct {
	bar *pb.ProgressBar
}

func (p *barProgress) Start(total int64) {
	if total < 0 {
		total = 0
	}
	p.bar = pb.New64(total)
	p.bar.Set(pb.Bytes, true)
	p.bar.Start()
}

func (p *barProgress) Add(n int64) {
	if p.bar != nil {
		p.bar.Add64(n)
	}
}

func (p *barProgress) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
