package main

import (
	"testing"
)

func TestParseInventories(t *testing.T) {
	got, err := parseInventories([]string{"alice=data/alice.csv", " bob = data/bob.csv "})
	if err != nil {
		t.Fatalf("parseInventories returned error: %v", err)
	}
	if got["alice"] != "data/alice.csv" || got["bob"] != "data/bob.csv" {
		t.Errorf("unexpected inventories %v", got)
	}

	for _, bad := range [][]string{{"alice"}, {"=x.csv"}, {"alice="}, {"a=1.csv", "a=2.csv"}} {
		if _, err := parseInventories(bad); err == nil {
			t.Errorf("expected error for %v", bad)
		}
	}
}

func TestParseTolerances(t *testing.T) {
	got, err := parseTolerances("0, 0.05,0.1,")
	if err != nil {
		t.Fatalf("parseTolerances returned error: %v", err)
	}
	if len(got) != 3 || got[1] != 0.05 {
		t.Errorf("unexpected tolerances %v", got)
	}
	if _, err := parseTolerances("0,abc"); err == nil {
		t.Errorf("expected error for invalid tolerance")
	}
	if _, err := parseTolerances(" , "); err == nil {
		t.Errorf("expected error for empty list")
	}
}
