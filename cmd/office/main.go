package main

import (
	"context"
	goflag "flag"

	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/office"
	"github.com/meetgrid/meetgrid/pkg/os"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewOfficeConfig()
	if err != nil {
		panic("config fail: " + err.Error())
	}
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Office.Debug, "o", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	services := office.New(conf, log)
	services.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := services.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	<-os.ExpectTermination()
	cancel()
}
