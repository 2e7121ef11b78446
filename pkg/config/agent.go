package config

import (
	"net/url"

	"github.com/spf13/pflag"
)

type AgentConfig struct {
	Agent     Agent
	Recording Recording
	Storage   Storage
	Version   Version
	Webrtc    Webrtc
}

type Agent struct {
	Debug      bool
	Monitoring Monitoring
	Network    struct {
		OfficeAddress string
		Endpoint      string
		Secure        bool
	}
	Media struct {
		AudioFile string
		VideoFile string
	}
	Meeting  string
	Name     string
	Space    string
	Strategy string
	Tag      string
}

func NewAgentConfig() (conf AgentConfig, err error) {
	err = LoadConfig(&conf, "")
	return
}

// ParseFlags updates config values from passed runtime flags.
// Define own flags with default value set to the current config param.
func (c *AgentConfig) ParseFlags() {
	fs := pflag.CommandLine
	a := &c.Agent
	fs.BoolVarP(&a.Debug, "debug", "d", a.Debug, "Enable debug logging")
	fs.StringVar(&a.Network.OfficeAddress, "office", a.Network.OfficeAddress, "Office address to connect (host:port)")
	fs.StringVarP(&a.Meeting, "meeting", "m", a.Meeting, "Meeting (room) id to join")
	fs.StringVarP(&a.Name, "name", "n", a.Name, "Display name of the agent")
	fs.StringVar(&a.Space, "space", a.Space, "Space name for an implicitly created meeting")
	fs.StringVar(&a.Strategy, "strategy", a.Strategy, "Preferred call strategy [mesh, simple]")
	fs.StringVar(&a.Media.AudioFile, "audio", a.Media.AudioFile, "OGG file for the microphone track")
	fs.StringVar(&a.Media.VideoFile, "video", a.Media.VideoFile, "IVF file for the camera track")
	fs.IntVar(&a.Monitoring.Port, "monitoring.port", a.Monitoring.Port, "Monitoring server port")
	fs.BoolVar(&c.Recording.Enabled, "record", c.Recording.Enabled, "Ask for meeting recording on join")
	pflag.Parse()
}

// OfficeUrl returns the websocket endpoint of the office server.
func (a *Agent) OfficeUrl() url.URL {
	scheme := "ws"
	if a.Network.Secure {
		scheme = "wss"
	}
	endpoint := a.Network.Endpoint
	if endpoint == "" {
		endpoint = "/ws"
	}
	return url.URL{Scheme: scheme, Host: a.Network.OfficeAddress, Path: endpoint}
}
