package config

import "github.com/spf13/pflag"

type OfficeConfig struct {
	Office    Office
	Recording Recording
	Storage   Storage
	Summary   Summary
	Version   Version
	Webrtc    Webrtc
}

type Office struct {
	Debug      bool
	DataDir    string
	Library    Library
	Monitoring Monitoring
	Origin     struct {
		UserWs string
	}
	Server Server
}

func NewOfficeConfig() (conf OfficeConfig, err error) {
	err = LoadConfig(&conf, "")
	return
}

// ParseFlags updates config values from passed runtime flags.
// Define own flags with default value set to the current config param.
func (c *OfficeConfig) ParseFlags() {
	fs := pflag.CommandLine
	c.Office.Server.WithFlags(fs)
	fs.BoolVarP(&c.Office.Debug, "debug", "d", c.Office.Debug, "Enable debug logging")
	fs.IntVar(&c.Office.Monitoring.Port, "monitoring.port", c.Office.Monitoring.Port, "Monitoring server port")
	fs.StringVar(&c.Office.Library.BasePath, "library", c.Office.Library.BasePath, "Space library root directory")
	pflag.Parse()
}
