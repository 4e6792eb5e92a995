package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"card-broker/internal/tradeopt"
)

const aliceInventory = "\ufeffId;Name;Set;Normal Quantity;Holo Quantity;Reverse Holo Quantity\n" +
	"sv35-12;Charmander;151;2;0;1\n" +
	"sv1-4;Sprigatito;Scarlet & Violet;0;0;0\n" +
	"base1-58;Pikachu;Base;;3;\n"

const bobInventory = "Id;Name;Set;Normal Quantity;Holo Quantity;Reverse Holo Quantity\n" +
	"sv1-4;Sprigatito;Scarlet & Violet;4;0;0\n"

const priceTable = "id,name,set_id,price_type,price\n" +
	"sv3pt5-12,Charmander,sv3pt5,normal_market,1.5\n" +
	"sv3pt5-12,Charmander,sv3pt5,reverseHolofoil_market,\n" +
	"base1-58,Pikachu,base1,holofoil_market,40\n" +
	"sv1-4,Sprigatito,sv1,normal_market,0.25\n" +
	"sv1-4,Sprigatito,sv1,1stEditionHolofoil_market,3\n"

func TestReadInventory(t *testing.T) {
	loader := NewLoader(Options{}, nil)

	inventory, catalog, err := loader.ReadInventory(strings.NewReader(aliceInventory), "alice")
	if err != nil {
		t.Fatalf("ReadInventory returned error: %v", err)
	}

	want := map[tradeopt.Item]int{
		"sv3pt5-12_normal_quantity":       2,
		"sv3pt5-12_reverse_holo_quantity": 1,
		"base1-58_holo_quantity":          3,
	}
	if len(inventory) != len(want) {
		t.Fatalf("expected %d holdings, got %d: %v", len(want), len(inventory), inventory)
	}
	for item, qty := range want {
		if got := inventory.Quantity("alice", item); got != qty {
			t.Errorf("%s: expected %d, got %d", item, qty, got)
		}
	}
	if info := catalog["base1-58_holo_quantity"]; info.Name != "Pikachu" || info.Set != "Base" {
		t.Errorf("unexpected catalog entry %+v", info)
	}
}

func TestReadInventory_Errors(t *testing.T) {
	loader := NewLoader(Options{}, nil)

	cases := map[string]string{
		"Empty":            "",
		"MissingId":        "Name;Normal Quantity\nPikachu;1\n",
		"NegativeQuantity": "Id;Normal Quantity\nsv1-1;-2\n",
		"NotANumber":       "Id;Normal Quantity\nsv1-1;two\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := loader.ReadInventory(strings.NewReader(input), "alice"); err == nil {
				t.Fatalf("expected error for %q", input)
			}
		})
	}
}

func TestReadPrices(t *testing.T) {
	loader := NewLoader(Options{}, nil)

	prices, catalog, err := loader.ReadPrices(strings.NewReader(priceTable))
	if err != nil {
		t.Fatalf("ReadPrices returned error: %v", err)
	}
	if len(prices) != 4 {
		t.Fatalf("expected 4 prices, got %d: %v", len(prices), prices)
	}
	if prices["base1-58_holo_quantity"] != 40 {
		t.Errorf("expected holofoil price aligned to holo variant, got %v", prices)
	}
	if _, ok := prices["sv3pt5-12_reverse_holo_quantity"]; ok {
		t.Errorf("expected empty price to be treated as missing")
	}
	if prices["sv1-4_1stEditionHolofoil_market"] != 3 {
		t.Errorf("expected unknown price type to be kept verbatim")
	}
	if catalog["sv1-4_normal_quantity"].Set != "sv1" {
		t.Errorf("unexpected catalog %+v", catalog["sv1-4_normal_quantity"])
	}

	if _, _, err := loader.ReadPrices(strings.NewReader("id,price_type,price\nx,normal_market,-1\n")); err == nil {
		t.Errorf("expected negative price to be rejected")
	}
}

func TestAlignSet(t *testing.T) {
	loader := NewLoader(Options{SetAliases: map[string]string{"old": "new"}}, nil)

	cases := map[string]string{
		"old-12": "new-12",
		"old":    "new",
		"sv35-1": "sv35-1",
		"":       "",
	}
	for in, want := range cases {
		if got := loader.alignSet(in); got != want {
			t.Errorf("alignSet(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadInventories(t *testing.T) {
	dir := t.TempDir()
	alicePath := filepath.Join(dir, "alice.csv")
	bobPath := filepath.Join(dir, "bob.csv")
	if err := os.WriteFile(alicePath, []byte(aliceInventory), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bobPath, []byte(bobInventory), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(Options{}, nil)
	inventory, catalog, err := loader.LoadInventories(context.Background(), map[tradeopt.Agent]string{
		"alice": alicePath,
		"bob":   bobPath,
	})
	if err != nil {
		t.Fatalf("LoadInventories returned error: %v", err)
	}
	if len(inventory) != 4 {
		t.Errorf("expected 4 holdings, got %d: %v", len(inventory), inventory)
	}
	if inventory.Quantity("bob", "sv1-4_normal_quantity") != 4 {
		t.Errorf("expected bob's holding to be loaded")
	}
	if _, ok := catalog["sv1-4_normal_quantity"]; !ok {
		t.Errorf("expected catalog entries to be merged")
	}

	t.Run("MissingFile", func(t *testing.T) {
		_, _, err := loader.LoadInventories(context.Background(), map[tradeopt.Agent]string{
			"alice": alicePath,
			"bob":   filepath.Join(dir, "missing.csv"),
		})
		if err == nil {
			t.Fatalf("expected error for missing file")
		}
	})

	t.Run("NoFiles", func(t *testing.T) {
		if _, _, err := loader.LoadInventories(context.Background(), nil); err == nil {
			t.Fatalf("expected error when no files are given")
		}
	})
}

func TestTradableAndHoldings(t *testing.T) {
	loader := NewLoader(Options{}, nil)
	prices, _, err := loader.ReadPrices(strings.NewReader(priceTable))
	if err != nil {
		t.Fatal(err)
	}
	alice, _, err := loader.ReadInventory(strings.NewReader(aliceInventory), "alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, _, err := loader.ReadInventory(strings.NewReader(bobInventory), "bob")
	if err != nil {
		t.Fatal(err)
	}
	inventory := make(tradeopt.Inventory)
	for k, v := range alice {
		inventory[k] = v
	}
	for k, v := range bob {
		inventory[k] = v
	}

	items := Tradable(prices, inventory)
	want := []tradeopt.Item{"base1-58_holo_quantity", "sv1-4_normal_quantity", "sv3pt5-12_normal_quantity"}
	if len(items) != len(want) {
		t.Fatalf("expected %v, got %v", want, items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d: expected %s, got %s", i, want[i], items[i])
		}
	}

	summaries := Holdings(prices, inventory)
	if len(summaries) != 2 || summaries[0].Agent != "alice" {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
	a := summaries[0]
	if a.Units != 6 || a.Distinct != 3 || a.Unpriced != 1 || a.Value.String() != "123" {
		t.Errorf("unexpected alice summary %+v", a)
	}
	if b := summaries[1]; b.Units != 4 || b.Value.String() != "1" {
		t.Errorf("unexpected bob summary %+v", b)
	}
}
