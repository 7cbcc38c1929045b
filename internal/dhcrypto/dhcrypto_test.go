package dhcrypto

import "testing"

func TestLoginKey(t *testing.T) {
	got := LoginKey("cba1b29e32cb17aa46b8ff9e73c7f40b", "somepassword", "5daf91fc5cfc1be8e081cfb08f792726")
	want := "CD925241C437CCB6468EA3D4BF67639A"
	if got != want {
		t.Fatalf("LoginKey = %s, want %s", got, want)
	}
}

// TestDevAuthGoldenVector is invariant 6 from spec §8.
func TestDevAuthGoldenVector(t *testing.T) {
	loginKey := "996103384CDF19179E19243E959BBF8B"
	got := DevAuth(loginKey, 12345, 1700000000, "127.0.0.1:55555")
	want := "QRtRmsddNDnLg9PPZExxsZC05ORxr3Ik04xUB9pOATg="
	if got != want {
		t.Fatalf("DevAuth = %s, want %s", got, want)
	}
}

// TestEncryptDecryptRoundtrip is invariant 5 from spec §8.
func TestEncryptDecryptRoundtrip(t *testing.T) {
	loginKey := "996103384CDF19179E19243E959BBF8B"
	cases := []string{
		"",
		"a",
		"127.0.0.1:55555",
		"the quick brown fox jumps over the lazy dog",
	}
	for _, s := range cases {
		ct, err := Encrypt(loginKey, 99, s)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", s, err)
		}
		pt, err := Decrypt(loginKey, 99, ct)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", s, err)
		}
		if pt != s {
			t.Fatalf("roundtrip mismatch: got %q, want %q", pt, s)
		}
	}
}

func TestSessionKeyDeterministic(t *testing.T) {
	a := SessionKey("ABCDEF", 42)
	b := SessionKey("ABCDEF", 42)
	if len(a) != SessionKeySize {
		t.Fatalf("SessionKey length = %d, want %d", len(a), SessionKeySize)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("SessionKey not deterministic at byte %d", i)
		}
	}

	c := SessionKey("ABCDEF", 43)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("SessionKey identical across different nonces")
	}
}
