package util

import (
	"strings"
	"testing"

	"github.com/wiresocks/wiresocks-ui/database/model"
)

func TestGenerateCredentials(t *testing.T) {
	creds, err := GenerateCredentials()
	if err != nil {
		t.Fatalf("GenerateCredentials: %v", err)
	}
	if !creds.Valid() {
		t.Fatal("generated credentials are empty")
	}
	if err := creds.Validate(); err != nil {
		t.Fatalf("generated credentials do not parse: %v", err)
	}
	if creds.PrivateKey == creds.PublicKey {
		t.Error("private and public key must differ")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	creds := Credentials{PrivateKey: "garbage", PublicKey: "garbage"}
	if err := creds.Validate(); err == nil {
		t.Fatal("expected invalid keys to be rejected")
	}
	if (Credentials{PrivateKey: "x"}).Valid() {
		t.Error("credentials with a missing key must not be valid")
	}
}

func TestRenderConfig(t *testing.T) {
	creds, err := GenerateCredentials()
	if err != nil {
		t.Fatal(err)
	}
	server := model.ServerRecord{
		Country:        "UK",
		Location:       "London",
		PubKey:         "server-public-key",
		ConnectionName: "uk-lon.example.com",
	}

	conf := RenderConfig(server, creds, 1080)

	for _, want := range []string{
		"[Interface]",
		"PrivateKey = " + creds.PrivateKey,
		"Address = 10.14.0.2/16",
		"DNS = 162.252.172.57, 149.154.159.92",
		"[Peer]",
		"PublicKey = server-public-key",
		"Endpoint = uk-lon.example.com:51820",
		"PersistentKeepalive = 25",
		"[Socks5]",
		"BindAddress = 127.0.0.1:1080",
	} {
		if !strings.Contains(conf, want) {
			t.Errorf("rendered config missing %q", want)
		}
	}
}
