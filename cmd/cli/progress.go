package main

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"github.com/yourusername/vgrab-go/internal/domain"
)

// barObserver renders one job as an mpb progress bar
type barObserver struct {
	bar    *mpb.Bar
	status atomic.Value // string
}

func newBarObserver(pc *mpb.Progress, name string) *barObserver {
	o := &barObserver{}
	o.status.Store("waiting")
	o.bar = pc.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(truncate(name, 40), decor.WC{W: 41, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				return o.status.Load().(string)
			}),
		),
	)
	return o
}

func (o *barObserver) OnProgress(p domain.Progress) {
	o.status.Store(p.String())
	if p.BytesTotal > 0 {
		o.bar.SetTotal(p.BytesTotal, false)
	}
	o.bar.SetCurrent(p.BytesDownloaded)
}

func (o *barObserver) OnCompletion(r domain.JobRecord) {
	o.status.Store(r.ResultMessage)
	o.bar.SetTotal(-1, true)
}

func (o *barObserver) OnFailure(r domain.JobRecord) {
	o.status.Store("failed: " + r.ErrorMessage)
	o.bar.Abort(false)
}

// lineObserver prints one status line per notification
func lineObserver(w io.Writer) domain.Observer {
	return domain.ObserverFuncs{
		Progress: func(p domain.Progress) {
			fmt.Fprintln(w, p.String())
		},
		Completion: func(r domain.JobRecord) {
			fmt.Fprintln(w, r.ResultMessage)
		},
		Failure: func(r domain.JobRecord) {
			fmt.Fprintln(w, "failed: "+r.ErrorMessage)
		},
	}
}
