package platform

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	pushbridge "github.com/slush-dev/push-bridge"
)

// Presenter shows a notification with the given options. opts is never
// zero; silent deliveries are not presented.
type Presenter interface {
	Present(n pushbridge.Notification, opts pushbridge.PresentationOptions)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(n pushbridge.Notification, opts pushbridge.PresentationOptions)

func (f PresenterFunc) Present(n pushbridge.Notification, opts pushbridge.PresentationOptions) {
	f(n, opts)
}

// WriterPresenter prints one line per presented notification.
type WriterPresenter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterPresenter creates a WriterPresenter writing to w.
func NewWriterPresenter(w io.Writer) *WriterPresenter {
	return &WriterPresenter{w: w}
}

func (p *WriterPresenter) Present(n pushbridge.Notification, opts pushbridge.PresentationOptions) {
	body, err := json.Marshal(n.Payload)
	if err != nil {
		body = []byte(fmt.Sprintf("%v", map[string]any(n.Payload)))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, ">> NOTIFICATION [%s] id=%s %s\n", opts, n.ID, body)
}
