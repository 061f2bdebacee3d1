package util

import (
	"fmt"
	"strings"

	"github.com/wiresocks/wiresocks-ui/database/model"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Credentials is the user's WireGuard key pair. It lives for the
// application session: loaded from settings at startup, replaced on edit.
type Credentials struct {
	PrivateKey string
	PublicKey  string
}

func (c Credentials) Valid() bool {
	return c.PrivateKey != "" && c.PublicKey != ""
}

// Validate parses both keys so a typo is rejected before it ever reaches
// a rendered config.
func (c Credentials) Validate() error {
	if _, err := wgtypes.ParseKey(c.PrivateKey); err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	if _, err := wgtypes.ParseKey(c.PublicKey); err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	return nil
}

// GenerateCredentials creates a fresh key pair.
func GenerateCredentials() (Credentials, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		PrivateKey: priv.String(),
		PublicKey:  priv.PublicKey().String(),
	}, nil
}

// RenderConfig produces the complete config file content for the external
// proxy binary: a WireGuard interface/peer section tunneling to the given
// server, plus a local SOCKS5 bind. Pure function, no side effects.
func RenderConfig(server model.ServerRecord, creds Credentials, port int) string {
	endpoint := fmt.Sprintf("%s:51820", server.ConnectionName)

	var b strings.Builder
	fmt.Fprintf(&b, "# WireGuard config for %s - %s\n", server.Country, server.Location)
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", creds.PrivateKey)
	b.WriteString("Address = 10.14.0.2/16\n")
	b.WriteString("DNS = 162.252.172.57, 149.154.159.92\n")
	b.WriteString("\n")
	b.WriteString("[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", server.PubKey)
	fmt.Fprintf(&b, "Endpoint = %s\n", endpoint)
	b.WriteString("AllowedIPs = 0.0.0.0/0, ::/0\n")
	b.WriteString("PersistentKeepalive = 25\n")
	b.WriteString("\n")
	b.WriteString("[Socks5]\n")
	fmt.Fprintf(&b, "BindAddress = 127.0.0.1:%d\n", port)
	return b.String()
}
