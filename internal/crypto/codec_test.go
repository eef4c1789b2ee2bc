package crypto

import (
	"errors"
	"testing"
)

func TestCodec_RoundTrip(t *testing.T) {
	c, err := NewCodec("secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	for _, msg := range []string{"", "hello", "emoji ❤️", "a longer message with\nnewlines and spaces"} {
		ct, err := c.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", msg, err)
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", msg, err)
		}
		if got != msg {
			t.Fatalf("round trip: expected %q, got %q", msg, got)
		}
	}
}

func TestCodec_NonceUniqueness(t *testing.T) {
	c, err := NewCodec("secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		ct, err := c.Encrypt("same message")
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if _, dup := seen[ct.IV]; dup {
			t.Fatalf("nonce reused: %s", ct.IV)
		}
		if _, dup := seen[ct.Content]; dup {
			t.Fatalf("ciphertext repeated: %s", ct.Content)
		}
		seen[ct.IV] = struct{}{}
		seen[ct.Content] = struct{}{}
	}
}

func TestCodec_TamperedCiphertext(t *testing.T) {
	c, err := NewCodec("secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	ct, err := c.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	flip := func(s string) string {
		b := []byte(s)
		if b[0] == 'a' {
			b[0] = 'b'
		} else {
			b[0] = 'a'
		}
		return string(b)
	}

	tampered := ct
	tampered.Content = flip(ct.Content)
	if _, err := c.Decrypt(tampered); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for tampered content, got %v", err)
	}

	tampered = ct
	tampered.AuthTag = flip(ct.AuthTag)
	if _, err := c.Decrypt(tampered); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for tampered tag, got %v", err)
	}
}

func TestCodec_MalformedFields(t *testing.T) {
	c, err := NewCodec("secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	ct, err := c.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	bad := ct
	bad.IV = "not hex"
	if _, err := c.Decrypt(bad); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for bad iv, got %v", err)
	}

	bad = ct
	bad.IV = "abcd" // wrong length
	if _, err := c.Decrypt(bad); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for short iv, got %v", err)
	}

	bad = ct
	bad.AuthTag = "abcd"
	if _, err := c.Decrypt(bad); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for short tag, got %v", err)
	}
}

func TestCodec_DifferentSecretsCannotDecrypt(t *testing.T) {
	a, err := NewCodec("secret-a")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	b, err := NewCodec("secret-b")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	ct, err := a.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(ct); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity across keys, got %v", err)
	}
}
