package repository

import "testing"

func TestPageToken(t *testing.T) {
	token := encodePageToken("User#alice", "User#alice")

	pk, sk, err := decodePageToken(token)
	if err != nil {
		t.Fatalf("decodePageToken() ошибка: %v", err)
	}
	if pk != "User#alice" || sk != "User#alice" {
		t.Errorf("decodePageToken() = %q, %q", pk, sk)
	}

	if pk, sk, err := decodePageToken(""); err != nil || pk != "" || sk != "" {
		t.Errorf("пустой токен: %q, %q, %v", pk, sk, err)
	}
}

func TestAfterKey(t *testing.T) {
	tests := []struct {
		pk, sk, afterPK, afterSK string
		want                     bool
	}{
		{"b", "a", "a", "z", true},
		{"a", "b", "a", "a", true},
		{"a", "a", "a", "a", false},
		{"a", "z", "b", "a", false},
	}
	for _, tt := range tests {
		if got := afterKey(tt.pk, tt.sk, tt.afterPK, tt.afterSK); got != tt.want {
			t.Errorf("afterKey(%q,%q,%q,%q) = %v, хотели %v", tt.pk, tt.sk, tt.afterPK, tt.afterSK, got, tt.want)
		}
	}
}
