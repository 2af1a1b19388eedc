package internal

import "testing"

func TestETag(t *testing.T) {
	a := ETag([]byte("1) \talice (100 points)\n"))
	b := ETag([]byte("1) \talice (110 points)\n"))

	if a == b {
		t.Error("different bodies share an etag")
	}
	if a != ETag([]byte("1) \talice (100 points)\n")) {
		t.Error("etag is not stable")
	}
	if a[0] != '"' || a[len(a)-1] != '"' {
		t.Errorf("etag is not quoted: %s", a)
	}
}
