// Package retry implementa el reintento acotado con backoff exponencial
// que usan todas las llamadas salientes (courier, mails). Antes cada
// call-site duplicaba su propio loop; ahora hay uno solo.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Do ejecuta op hasta attempts veces. Entre intentos espera
// baseDelay, 2*baseDelay, 4*baseDelay... (2s/4s/8s con la config
// estándar de 3 intentos y base 2s).
func Do(ctx context.Context, attempts int, baseDelay time.Duration, op func() error) error {
	var lastErr error

	delay := baseDelay
	for i := 1; i <= attempts; i++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if i == attempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	return fmt.Errorf("agotados %d intentos: %w", attempts, lastErr)
}
