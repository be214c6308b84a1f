// Package delivery holds the inbound adapters that expose the login flow.
package delivery

import "context"

// Delivery is a long-running server started from main.
type Delivery interface {
	Serve(ctx context.Context) error
}
