package canonicalize

import (
	"testing"
)

func TestJCSSortsKeys(t *testing.T) {
	in := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": true, "y": false}}
	out, err := JCS(in)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":2,"b":1,"c":{"y":false,"z":true}}`
	if string(out) != want {
		t.Fatalf("got %s, want %s", out, want)
	}
}

func TestCanonicalHashStableAcrossKeyOrder(t *testing.T) {
	h1, err := CanonicalHash(map[string]any{"amount": 5000, "store_id": "S001"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CanonicalHash(map[string]any{"store_id": "S001", "amount": 5000})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", h1)
	}
}

func TestJCSStructTagsRespected(t *testing.T) {
	type payload struct {
		Amount  float64 `json:"amount"`
		StoreID string  `json:"store_id"`
	}
	out, err := JCS(payload{Amount: 12.5, StoreID: "S001"})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"amount":12.5,"store_id":"S001"}` {
		t.Fatalf("unexpected canonical form: %s", out)
	}
}
