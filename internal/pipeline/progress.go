package pipeline

import "sync/atomic"

// Progress checkpoints, in percent.
const (
	progressInspected    = 5
	progressPreprocessed = 15
	progressDetected     = 25
	progressPassesDone   = 85
	progressFused        = 92
	progressValidated    = 97
	progressDone         = 100
)

// progressTracker is a monotonic percentage counter. Lower values are ignored.
type progressTracker struct {
	value    atomic.Int32
	onChange func(int)
}

func newProgressTracker(onChange func(int)) *progressTracker {
	return &progressTracker{onChange: onChange}
}

// advance moves the counter to p if p is higher and reports whether it moved.
func (t *progressTracker) advance(p int) bool {
	if p > progressDone {
		p = progressDone
	}
	for {
		cur := t.value.Load()
		if int32(p) <= cur {
			return false
		}
		if t.value.CompareAndSwap(cur, int32(p)) {
			if t.onChange != nil {
				t.onChange(p)
			}
			return true
		}
	}
}

func (t *progressTracker) current() int {
	return int(t.value.Load())
}

// passProgress spreads the engine passes between detection and fusion.
func passProgress(done, total int) int {
	if total <= 0 {
		return progressPassesDone
	}
	return progressDetected + (progressPassesDone-progressDetected)*done/total
}
