//go:build js

package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// The SQLite driver has no js port; RunBytes never persists.
func persist(context.Context, string, string, *bundle) (string, error) {
	return "", fmt.Errorf("session store on js: %w", errors.ErrUnsupported)
}
