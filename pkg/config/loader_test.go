package config

import (
	"os"
	"testing"
)

func TestConfigEnv(t *testing.T) {
	var out OfficeConfig

	_ = os.Setenv("MEETGRID_OFFICE_SERVER_ADDRESS", "localhost:9999")
	_ = os.Setenv("MEETGRID_WEBRTC_ICESERVERS[0]_URLS", "stun:stun.example.com:3478")
	defer func() { _ = os.Unsetenv("MEETGRID_OFFICE_SERVER_ADDRESS") }()
	defer func() { _ = os.Unsetenv("MEETGRID_WEBRTC_ICESERVERS[0]_URLS") }()

	if err := LoadConfig(&out, ""); err != nil {
		t.Fatal(err)
	}

	if out.Office.Server.Address != "localhost:9999" {
		t.Errorf("%v is not localhost:9999", out.Office.Server.Address)
	}
	if len(out.Webrtc.IceServers) == 0 || out.Webrtc.IceServers[0].Urls != "stun:stun.example.com:3478" {
		t.Errorf("ice servers were not read from the environment: %+v", out.Webrtc.IceServers)
	}
}

func TestConfigFileDefaults(t *testing.T) {
	var out OfficeConfig
	if err := LoadConfig(&out, ""); err != nil {
		t.Fatal(err)
	}
	if out.Office.Server.Address == "" {
		t.Errorf("expected a default server address from the bundled config")
	}
	if out.Office.Library.BasePath == "" {
		t.Errorf("expected a default library path from the bundled config")
	}
}
