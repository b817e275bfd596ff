package cache

import (
	"testing"
	"time"
)

func TestFastCache_GetSet(t *testing.T) {
	c := NewFastCache[string](time.Minute)

	if got := c.Get("missing"); got != nil {
		t.Errorf("found %v, want nil", got)
	}

	value := "hello"
	c.Set("key", &value)

	got := c.Get("key")
	if got == nil || *got != "hello" {
		t.Errorf("found %v, want %q", got, "hello")
	}
}

func TestFastCache_Expiry(t *testing.T) {
	c := NewFastCache[int](10 * time.Millisecond)

	value := 42
	c.Set("key", &value)

	time.Sleep(20 * time.Millisecond)

	if got := c.Get("key"); got != nil {
		t.Errorf("found %v, want nil after expiry", got)
	}
}

func TestFastCache_Flush(t *testing.T) {
	c := NewFastCache[string](time.Minute)

	value := "hello"
	c.Set("key", &value)
	c.Flush()

	if got := c.Get("key"); got != nil {
		t.Errorf("found %v, want nil after flush", got)
	}
}
