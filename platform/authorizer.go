package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	pushbridge "github.com/slush-dev/push-bridge"
)

// Authorizer decides whether the user grants notification permission.
type Authorizer interface {
	Authorize(ctx context.Context, opts pushbridge.AuthorizationOptions) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, opts pushbridge.AuthorizationOptions) (bool, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, opts pushbridge.AuthorizationOptions) (bool, error) {
	return f(ctx, opts)
}

// Grant always grants.
func Grant() Authorizer {
	return AuthorizerFunc(func(context.Context, pushbridge.AuthorizationOptions) (bool, error) {
		return true, nil
	})
}

// Deny always refuses.
func Deny() Authorizer {
	return AuthorizerFunc(func(context.Context, pushbridge.AuthorizationOptions) (bool, error) {
		return false, nil
	})
}

// DefaultPromptTimeout is how long Prompt waits for an answer.
const DefaultPromptTimeout = 30 * time.Second

// Prompt asks on out and reads a y/N answer from in. No answer within
// timeout, end of input, or cancellation counts as a refusal.
func Prompt(in io.Reader, out io.Writer, timeout time.Duration) Authorizer {
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	return &prompt{in: bufio.NewScanner(in), out: out, timeout: timeout}
}

type prompt struct {
	in      *bufio.Scanner
	out     io.Writer
	timeout time.Duration
}

func (p *prompt) Authorize(ctx context.Context, opts pushbridge.AuthorizationOptions) (bool, error) {
	fmt.Fprintf(p.out, "Allow notifications (%s)? [y/N] ", opts)

	answer := make(chan string, 1)
	go func() {
		if p.in.Scan() {
			answer <- p.in.Text()
			return
		}
		close(answer)
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case line, ok := <-answer:
		if !ok {
			fmt.Fprintln(p.out)
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	case <-timer.C:
		fmt.Fprintln(p.out, "\nNo answer, notifications not allowed.")
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
