package main

import (
	"context"
	goflag "flag"

	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/monitoring"
	"github.com/meetgrid/meetgrid/pkg/os"
	"github.com/meetgrid/meetgrid/pkg/service"
	"github.com/meetgrid/meetgrid/pkg/session"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewAgentConfig()
	if err != nil {
		panic("config fail: " + err.Error())
	}
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Agent.Debug, "a"+conf.Agent.Tag, false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	agent, err := session.NewAgent(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("agent init failure")
	}
	var services service.Group
	services.Add(agent)
	if conf.Agent.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Agent.Monitoring, "agent", log)
		if err != nil {
			log.Error().Err(err).Msg("monitoring init failure")
		} else {
			services.Add(mon)
		}
	}
	services.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := services.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	select {
	case <-os.ExpectTermination():
	case <-agent.Done():
	}
	cancel()
}
