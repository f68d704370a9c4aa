package cmd

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/warpdl/rtfetch/cmd/common"
	"github.com/warpdl/rtfetch/pkg/fetchlib"
)

const barNameWidth = 32

type fileBar struct {
	bar *mpb.Bar
	sc  *SpeedCounter
}

// progressView renders one bar per running transfer. Handlers returned by
// handlers are keyed by destination path, which is unique within a run.
type progressView struct {
	p    *mpb.Progress
	mu   sync.Mutex
	bars map[string]*fileBar
}

func newProgressView(out io.Writer) *progressView {
	return &progressView{
		p: mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(DEF_BAR_REFRESH),
			mpb.WithWidth(40),
		),
		bars: make(map[string]*fileBar),
	}
}

func (v *progressView) handlers(entry fetchlib.PlanEntry) *fetchlib.Handlers {
	name := common.DisplayName(entry.RelPath, barNameWidth)
	return &fetchlib.Handlers{
		StartHandler: func(id string, _ fetchlib.TransferMode, total int64) {
			fb := &fileBar{
				bar: common.InitFileBar(v.p, name, total),
				sc:  NewSpeedCounter(DEF_BAR_REFRESH),
			}
			fb.sc.SetBar(fb.bar)
			fb.sc.Start()
			v.mu.Lock()
			v.bars[id] = fb
			v.mu.Unlock()
		},
		ProgressHandler: func(id string, n int) {
			if fb := v.get(id); fb != nil {
				fb.sc.IncrBy(n)
			}
		},
		CompleteHandler: func(id string, _ int64) {
			if fb := v.take(id); fb != nil {
				fb.sc.Stop()
				fb.bar.SetTotal(-1, true)
			}
		},
		ErrorHandler: func(id string, _ error) {
			if fb := v.take(id); fb != nil {
				fb.sc.Stop()
				fb.bar.Abort(true)
			}
		},
	}
}

func (v *progressView) get(id string) *fileBar {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bars[id]
}

func (v *progressView) take(id string) *fileBar {
	v.mu.Lock()
	defer v.mu.Unlock()
	fb := v.bars[id]
	delete(v.bars, id)
	return fb
}

// Wait aborts bars that never finished and waits for the renderer.
func (v *progressView) Wait() {
	v.mu.Lock()
	for id, fb := range v.bars {
		fb.sc.Stop()
		fb.bar.Abort(true)
		delete(v.bars, id)
	}
	v.mu.Unlock()
	v.p.Wait()
}
