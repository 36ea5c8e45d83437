package eval

import (
	"testing"
	"time"
)

func TestPageCache_PutAndNext(t *testing.T) {
	c := newPageCache(2, time.Minute)

	page, more := c.Put("k", []string{"a", "b", "c", "d", "e"})
	if len(page) != 2 || !more {
		t.Fatalf("first page: %v more=%v", page, more)
	}
	page, more, ok := c.Next("k")
	if !ok || len(page) != 2 || !more {
		t.Fatalf("second page: %v more=%v ok=%v", page, more, ok)
	}
	page, more, ok = c.Next("k")
	if !ok || len(page) != 1 || more {
		t.Fatalf("last page: %v more=%v ok=%v", page, more, ok)
	}
	if _, _, ok := c.Next("k"); ok {
		t.Fatal("drained key still served")
	}
}

func TestPageCache_ShortOutputNotCached(t *testing.T) {
	c := newPageCache(5, time.Minute)
	page, more := c.Put("k", []string{"only"})
	if len(page) != 1 || more {
		t.Fatalf("short put: %v more=%v", page, more)
	}
	if _, _, ok := c.Next("k"); ok {
		t.Fatal("short output should not be cached")
	}
}

func TestPageCache_IdleExpiry(t *testing.T) {
	c := newPageCache(1, 10*time.Millisecond)
	c.Put("k", []string{"a", "b", "c"})
	time.Sleep(25 * time.Millisecond)
	if _, _, ok := c.Next("k"); ok {
		t.Fatal("expired entry still served")
	}
}

func TestPageCache_KeysAreIndependent(t *testing.T) {
	c := newPageCache(1, time.Minute)
	c.Put("#chan:alice", []string{"a1", "a2"})
	c.Put("#chan:bob", []string{"b1", "b2"})

	page, _, ok := c.Next("#chan:alice")
	if !ok || page[0] != "a2" {
		t.Fatalf("alice page: %v ok=%v", page, ok)
	}
	page, _, ok = c.Next("#chan:bob")
	if !ok || page[0] != "b2" {
		t.Fatalf("bob page: %v ok=%v", page, ok)
	}
}
