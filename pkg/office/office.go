package office

import (
	"path/filepath"

	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/monitoring"
	"github.com/meetgrid/meetgrid/pkg/network/httpx"
	"github.com/meetgrid/meetgrid/pkg/os"
	"github.com/meetgrid/meetgrid/pkg/service"
)

// New assembles the office server: the meeting hub with its HTTP
// endpoint and an optional monitoring service.
func New(conf config.OfficeConfig, log *logger.Logger) (services service.Group) {
	if err := os.CheckCreateDir(conf.Office.DataDir); err != nil {
		log.Fatal().Err(err).Msgf("couldn't create the data directory %v", conf.Office.DataDir)
	}
	lock, err := os.NewFileLock(filepath.Join(conf.Office.DataDir, "office.lock"))
	if err == nil {
		err = lock.Lock()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("the data directory is owned by another office process")
	}

	lib := NewLibrary(conf.Office.Library, log)
	lib.Scan()

	hub := NewHub(conf, lib, log)
	hub.lock = lock

	h, err := NewHTTPServer(conf, log, func(mux *httpx.Mux) *httpx.Mux {
		return mux.HandleFunc("/ws", hub.handleUserConnection())
	})
	if err != nil {
		log.Fatal().Err(err).Msg("http server init failure")
		return
	}
	services.Add(h, hub)
	if conf.Office.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Office.Monitoring, "office", log)
		if err != nil {
			log.Error().Err(err).Msg("monitoring init failure")
		} else {
			services.Add(mon)
		}
	}
	return
}

func NewHTTPServer(conf config.OfficeConfig, log *logger.Logger, fnMux func(*httpx.Mux) *httpx.Mux) (*httpx.Server, error) {
	return httpx.NewServer(
		conf.Office.Server.GetAddr(),
		func(serv *httpx.Server) httpx.Handler {
			h := fnMux(serv.Mux())
			h.HandleFunc("/echo", func(w httpx.ResponseWriter, _ *httpx.Request) { w.WriteHeader(200) })
			return h
		},
		httpx.WithServerConfig(conf.Office.Server),
		httpx.WithPortRoll(true),
		httpx.WithLogger(log),
	)
}
