package cache

import (
	"errors"
	"testing"

	"github.com/sandrolain/goirl/pkg/types"
)

func expr(src string) *types.Expression {
	return types.NewExpression(types.NewAstNode(types.NodeString, src, 0), src, false, nil)
}

func TestEviction(t *testing.T) {
	c := New(2)
	c.Set("a", expr("a"))
	c.Set("b", expr("b"))
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", expr("c")) // evicts b, the least recently used
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("len %d", c.Len())
	}
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should be gone")
	}
	c.Clear()
	if c.Len() != 0 || c.Capacity() != 2 {
		t.Fatalf("len %d cap %d", c.Len(), c.Capacity())
	}
}

func TestGetOrCompile(t *testing.T) {
	c := New(0)
	if c.Capacity() != DefaultCapacity {
		t.Fatalf("capacity %d", c.Capacity())
	}
	calls := 0
	compile := func() (*types.Expression, error) {
		calls++
		return expr("x"), nil
	}
	for i := 0; i < 3; i++ {
		if _, err := c.GetOrCompile("x", compile); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatalf("compiled %d times", calls)
	}

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		if _, err := c.GetOrCompile("bad", func() (*types.Expression, error) { calls++; return nil, boom }); err != boom {
			t.Fatalf("got %v", err)
		}
	}
	if calls != 3 {
		t.Fatalf("errors must not be cached, compiled %d times", calls)
	}
}
