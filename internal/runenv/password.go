package runenv

import (
	"context"
	"sync"
)

// PasswordSource supplies the decryption password. An empty answer skips
// decryption.
type PasswordSource interface {
	Obtain(ctx context.Context) (string, error)
}

type PasswordFunc func(ctx context.Context) (string, error)

func (f PasswordFunc) Obtain(ctx context.Context) (string, error) { return f(ctx) }

// StaticPassword always answers with the same password.
type StaticPassword string

func (p StaticPassword) Obtain(context.Context) (string, error) { return string(p), nil }

type rememberedPassword struct {
	src      PasswordSource
	mu       sync.Mutex
	answered bool
	password string
}

// Remember wraps src so that its first answer is reused by later calls. An
// empty answer (skip) is kept too; errors are not, so a cancelled prompt is
// asked again.
func Remember(src PasswordSource) PasswordSource {
	return &rememberedPassword{src: src}
}

func (r *rememberedPassword) Obtain(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.answered {
		return r.password, nil
	}
	pw, err := r.src.Obtain(ctx)
	if err != nil {
		return "", err
	}
	r.answered = true
	r.password = pw
	return pw, nil
}
