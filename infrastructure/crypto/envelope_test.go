package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte(`{"type":"service_account","project_id":"example"}`)

	env, err := Encrypt("correct horse battery staple", plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if len(env.Salt) != saltSize {
		t.Errorf("Salt length = %d, want %d", len(env.Salt), saltSize)
	}
	if len(env.IV) != nonceSize {
		t.Errorf("IV length = %d, want %d", len(env.IV), nonceSize)
	}

	got, err := Decrypt("correct horse battery staple", env)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestDecryptWrongPassphraseFails(t *testing.T) {
	env, err := Encrypt("right-passphrase", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := Decrypt("wrong-passphrase", env); err == nil {
		t.Fatal("Decrypt() with the wrong passphrase should fail GCM tag verification")
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	env, err := Encrypt("passphrase", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	env.EncryptedData[0] ^= 0xFF

	if _, err := Decrypt("passphrase", env); err == nil {
		t.Fatal("Decrypt() of tampered ciphertext should fail GCM tag verification")
	}
}

func TestEncryptProducesFreshSaltPerCall(t *testing.T) {
	a, err := Encrypt("passphrase", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := Encrypt("passphrase", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if string(a.Salt) == string(b.Salt) {
		t.Fatal("two Encrypt calls should not share a salt")
	}
	if string(a.EncryptedData) == string(b.EncryptedData) {
		t.Fatal("two Encrypt calls of the same plaintext should not produce the same ciphertext")
	}
}

func TestGenerateIndexNowKeyFormat(t *testing.T) {
	key, err := GenerateIndexNowKey()
	if err != nil {
		t.Fatalf("GenerateIndexNowKey() error = %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("len(key) = %d, want 32 hex characters", len(key))
	}
	for _, r := range key {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Fatalf("key contains non-hex character %q", r)
		}
	}
}
