package signing

import "testing"

func TestNewSigner(t *testing.T) {
	if NewSigner("") != nil {
		t.Error("expected nil signer for empty secret")
	}

	signer := NewSigner("test-secret-key")
	if signer == nil {
		t.Fatal("expected non-nil signer")
	}
	if string(signer.secretKey) != "test-secret-key" {
		t.Errorf("expected secret key %q, got %q", "test-secret-key", string(signer.secretKey))
	}
}

func TestSigner_Sign(t *testing.T) {
	signer := NewSigner("test-secret")
	body := []byte(`{"filename":"order_234.xml","path":"/as2/inbox/order_234.xml","timestamp":"2025-08-08T10:30:52"}`)

	signature := signer.Sign(body)
	if len(signature) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(signature))
	}

	if signature != signer.Sign(body) {
		t.Error("expected deterministic signatures for same input")
	}

	if signature == signer.Sign([]byte(`{}`)) {
		t.Error("expected different signatures for different bodies")
	}

	if signature == NewSigner("other-secret").Sign(body) {
		t.Error("expected different signatures for different secrets")
	}
}

func TestSigner_KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	signer := NewSigner("Jefe")
	got := signer.Sign([]byte("what do ya want for nothing?"))
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestSigner_Verify(t *testing.T) {
	signer := NewSigner("test-secret")
	body := []byte(`{"test": "data"}`)
	signature := signer.Sign(body)

	tests := []struct {
		name      string
		body      []byte
		signature string
		want      bool
	}{
		{"valid", body, signature, true},
		{"tampered body", []byte(`{"test": "other"}`), signature, false},
		{"wrong signature", body, "deadbeef", false},
		{"empty signature", body, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signer.Verify(tt.body, tt.signature); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}
