package submit

import "sync"

// textInflight serializes text submissions for the whole process. The
// guard never queues: a second submission while one is in flight is
// rejected immediately rather than waiting its turn.
var textInflight = make(chan struct{}, 1)

// acquireText tries to claim the text slot. On success it returns a
// release function that is safe to call more than once.
func acquireText() (release func(), ok bool) {
	select {
	case textInflight <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-textInflight })
		}, true
	default:
		return nil, false
	}
}
