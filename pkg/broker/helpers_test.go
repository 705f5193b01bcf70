package broker

import (
	"testing"

	"github.com/ccanvas/ccanvas/pkg/paths"
)

func newTestLayout(t *testing.T) (*paths.Layout, error) {
	t.Helper()
	return paths.NewLayout(t.TempDir())
}
