package pushbridge

import (
	"context"
	"sync"
)

// TokenFuture is the result of the provider token fetch started by OnLaunch.
// Observing it is optional.
type TokenFuture struct {
	done  chan struct{}
	once  sync.Once
	token ProviderToken
	err   error
}

func newTokenFuture() *TokenFuture {
	return &TokenFuture{done: make(chan struct{})}
}

// resolve settles the future. Later calls are ignored.
func (f *TokenFuture) resolve(token ProviderToken, err error) {
	f.once.Do(func() {
		f.token = token
		f.err = err
		close(f.done)
	})
}

// Done is closed once the fetch has completed.
func (f *TokenFuture) Done() <-chan struct{} { return f.done }

// Wait blocks until the fetch completes or ctx is done.
func (f *TokenFuture) Wait(ctx context.Context) (ProviderToken, error) {
	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		return NoProviderToken, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while pending.
func (f *TokenFuture) Result() (token ProviderToken, ok bool, err error) {
	select {
	case <-f.done:
		return f.token, true, f.err
	default:
		return NoProviderToken, false, nil
	}
}
