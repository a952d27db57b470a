package lifecycle_test

import (
	"testing"

	"github.com/go-midx/midx/lifecycle"
	"github.com/go-midx/midx/mwc"
)

func TestGlobalInitShutdown(t *testing.T) {
	lifecycle.ResetForTest()
	defer lifecycle.ResetForTest()

	lifecycle.GlobalInit(nil, mwc.DefaultConfig())

	if lifecycle.Packs() == nil {
		t.Fatalf("Packs() returned nil after GlobalInit")
	}
	if lifecycle.Windows() == nil {
		t.Fatalf("Windows() returned nil after GlobalInit")
	}

	lifecycle.GlobalShutdown()
	lifecycle.GlobalShutdown() // must be safe to call twice

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("Packs() after GlobalShutdown did not panic")
		}
	}()
	lifecycle.Packs()
}

func TestGlobalInitFailsFastOnDoubleInit(t *testing.T) {
	lifecycle.ResetForTest()
	defer lifecycle.ResetForTest()

	lifecycle.GlobalInit(nil, mwc.DefaultConfig())

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("second GlobalInit did not panic")
		}
	}()
	lifecycle.GlobalInit(nil, mwc.DefaultConfig())
}
