package service

import (
	"reflect"
	"testing"

	"github.com/wiresocks/wiresocks-ui/database/model"
)

func testDirectory() *ServerDirectory {
	return &ServerDirectory{
		Servers: []model.ServerRecord{
			{Country: "UK", Location: "London", PubKey: "k1", ConnectionName: "uk-lon1.example.com", Load: 42},
			{Country: "UK", Location: "London", PubKey: "k2", ConnectionName: "uk-lon2.example.com", Load: 17},
			{Country: "UK", Location: "Manchester", PubKey: "k3", ConnectionName: "uk-man1.example.com", Load: 80},
			{Country: "Germany", Location: "Berlin", PubKey: "k4", ConnectionName: "de-ber1.example.com", Load: 55},
		},
	}
}

func TestCountryOptions(t *testing.T) {
	got := testDirectory().CountryOptions()
	want := []string{
		"Germany",
		"UK",
		"UK - London",
		"UK - Manchester",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CountryOptions() = %v, want %v", got, want)
	}
}

func TestBySelectionCountryOnly(t *testing.T) {
	servers := testDirectory().BySelection("UK")
	if len(servers) != 3 {
		t.Fatalf("expected 3 UK servers, got %d", len(servers))
	}
}

func TestBySelectionCountryAndLocation(t *testing.T) {
	servers := testDirectory().BySelection("UK - London")
	if len(servers) != 2 {
		t.Fatalf("expected 2 London servers, got %d", len(servers))
	}
	for _, s := range servers {
		if s.Location != "London" {
			t.Errorf("unexpected location %q", s.Location)
		}
	}
}

func TestBySelectionFuzzyLocation(t *testing.T) {
	d := &ServerDirectory{
		Servers: []model.ServerRecord{
			{Country: "UK", Location: " london ", PubKey: "k1", ConnectionName: "c1"},
		},
	}
	servers := d.BySelection("UK - London")
	if len(servers) != 1 {
		t.Fatalf("expected trimmed case-insensitive fallback to match, got %d", len(servers))
	}
}

func TestBySelectionNoMatch(t *testing.T) {
	if got := testDirectory().BySelection("France"); len(got) != 0 {
		t.Errorf("expected no servers for France, got %d", len(got))
	}
	if got := testDirectory().BySelection("UK - Leeds"); len(got) != 0 {
		t.Errorf("expected no servers for UK - Leeds, got %d", len(got))
	}
}

func TestBestServerPicksLowestLoad(t *testing.T) {
	best, ok := BestServer(testDirectory().BySelection("UK - London"))
	if !ok {
		t.Fatal("expected a server")
	}
	if best.PubKey != "k2" {
		t.Errorf("expected lowest-load server k2, got %s", best.PubKey)
	}

	if _, ok := BestServer(nil); ok {
		t.Error("expected no server from empty candidates")
	}
}

func TestNilDirectory(t *testing.T) {
	var d *ServerDirectory
	if d.CountryOptions() != nil {
		t.Error("nil directory should produce no options")
	}
	if d.BySelection("UK") != nil {
		t.Error("nil directory should produce no servers")
	}
}
