package rudp

import (
	"bytes"
	"testing"
)

func TestPayloadCopyAndReset(t *testing.T) {
	el := NewPayload(8).(*Payload)

	el.Copy([]byte("hi"))
	if !bytes.Equal(el.Bytes(), []byte("hi")) {
		t.Fatalf("Bytes() = %q, want %q", el.Bytes(), "hi")
	}

	el.Reset()
	if len(el.Bytes()) != 0 {
		t.Fatalf("Bytes() after Reset() = %q, want empty", el.Bytes())
	}
}

func TestPayloadCopyGrowsBeyondInitialSize(t *testing.T) {
	el := NewPayload(2).(*Payload)
	big := bytes.Repeat([]byte("x"), 64)

	el.Copy(big)
	if !bytes.Equal(el.Bytes(), big) {
		t.Fatalf("Bytes() length = %d, want %d", len(el.Bytes()), len(big))
	}

	// Reset must not panic even though the backing slice grew past the
	// pool's original per-element size.
	el.Reset()
	if len(el.Bytes()) != 0 {
		t.Fatalf("Bytes() after Reset() = %q, want empty", el.Bytes())
	}
}

func TestNewPayloadRejectsBadParams(t *testing.T) {
	if got := NewPayload(); got != nil {
		t.Errorf("NewPayload() with no params = %v, want nil", got)
	}
	if got := NewPayload("not an int"); got != nil {
		t.Errorf("NewPayload(string) = %v, want nil", got)
	}
}

func TestNewPayloadPoolConstructs(t *testing.T) {
	pool := newPayloadPool(4, 64)
	if pool == nil {
		t.Fatal("newPayloadPool returned nil")
	}
}
