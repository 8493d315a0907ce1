package idempotency

import (
	"path/filepath"
	"testing"
)

func TestSeenFalseBeforeMarkApplied(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "dedupe"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Seen("0xabc", 0) {
		t.Error("expected unseen entry to report false")
	}
}

func TestMarkAppliedThenSeenTrue(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "dedupe"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.MarkApplied("0xabc", 2); err != nil {
		t.Fatal(err)
	}
	if !c.Seen("0xabc", 2) {
		t.Error("expected marked entry to report seen")
	}
	if c.Seen("0xabc", 3) {
		t.Error("expected distinct log index to remain unseen")
	}
}

func TestSeenEmptyTxHashIsFalse(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "dedupe"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Seen("", 0) {
		t.Error("expected empty tx hash to report false")
	}
}
