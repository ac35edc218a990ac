package browser

import (
	"context"
)

// CombineContext returns a context derived from sessionCtx (keeping its
// values, including the chromedp executor) that is also cancelled when
// opCtx is done.
func CombineContext(sessionCtx context.Context, opCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(sessionCtx)

	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
