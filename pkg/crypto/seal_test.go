package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams keeps key derivation cheap in tests.
var fastParams = Params{Time: 1, Memory: 1024, Threads: 1}

func TestSealOpen(t *testing.T) {
	plaintext := []byte(`{"cookies":{"sessionid":"abc"}}`)

	sealed, err := Seal(plaintext, "hunter2", fastParams)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Error("sealed blob should carry the magic prefix")
	}
	if bytes.Contains(sealed, []byte("sessionid")) {
		t.Error("sealed blob leaks plaintext")
	}

	got, err := Open(sealed, "hunter2")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open = %q, want %q", got, plaintext)
	}
}

func TestOpen_WrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "right", fastParams)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(sealed, "wrong"); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("err = %v, want ErrOpenFailed", err)
	}
}

func TestOpen_TamperedHeader(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "pw", fastParams)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	// Flip a salt byte; the header is authenticated.
	sealed[20] ^= 0xff
	if _, err := Open(sealed, "pw"); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("err = %v, want ErrOpenFailed", err)
	}
}

func TestSeal_DifferentEachTime(t *testing.T) {
	a, _ := Seal([]byte("same"), "pw", fastParams)
	b, _ := Seal([]byte("same"), "pw", fastParams)
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext should differ")
	}
}

func TestSeal_EmptyPassphrase(t *testing.T) {
	if _, err := Seal([]byte("x"), "", fastParams); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("err = %v, want ErrEmptyPassword", err)
	}
}

func TestOpen_InvalidData(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrInvalidMagic},
		{"short", []byte("RRSB"), ErrInvalidMagic},
		{"plain json", []byte(`{"cookies":{},"padding":"xxxxxxxxxxxxxxxxxxxxxxxxx"}`), ErrInvalidMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.data, "pw"); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	sealed, _ := Seal([]byte("x"), "pw", fastParams)
	sealed[4] = 9
	if _, err := Open(sealed, "pw"); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("err = %v, want ErrInvalidVersion", err)
	}
}
