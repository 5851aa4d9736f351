package factory

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/config"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/discovery/udp"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/dispatch"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/metrics"
)

// ServerFactory creates the request handler and the two listeners
type ServerFactory struct {
	cfg     *config.Config
	metrics *metrics.Metrics
}

// NewServerFactory creates a new server factory
func NewServerFactory(cfg *config.Config, m *metrics.Metrics) *ServerFactory {
	return &ServerFactory{cfg: cfg, metrics: m}
}

// CreateHandler builds the dispatcher for the configured framing
func (f *ServerFactory) CreateHandler(cat *catalogue.Catalogue, audit core.AuditSink) (*dispatch.Dispatcher, error) {
	framing, err := dispatch.ParseFraming(f.cfg.Framing)
	if err != nil {
		return nil, err
	}
	logger.Info("Creating request dispatcher", "framing", framing, "services", cat.Len())
	return dispatch.New(cat, audit, f.metrics, framing, f.cfg.ReadBufferSize), nil
}

// CreateServer binds the TCP multiplexer
func (f *ServerFactory) CreateServer(handler core.RequestHandler) (*core.Server, error) {
	srv, err := core.Listen(core.ServerConfig{
		BindAddress:            f.cfg.BindAddress,
		Port:                   f.cfg.ServerPort,
		Backlog:                f.cfg.ListenBacklog,
		MaxClients:             f.cfg.MaxClients,
		ReadBufferSize:         f.cfg.ReadBufferSize,
		CloseClientsOnShutdown: f.cfg.CloseClientsOnShutdown,
	}, handler, f.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to start emergency server: %w", err)
	}
	return srv, nil
}

// CreateResponder binds the UDP discovery responder
func (f *ServerFactory) CreateResponder() (*udp.Responder, error) {
	addr := net.JoinHostPort(f.cfg.BindAddress, strconv.Itoa(f.cfg.DiscoveryPort))
	if f.cfg.DiscoveryToken == "" {
		logger.Warn("DISCOVERY_TOKEN is empty - every datagram will be answered")
	}
	r, err := udp.Listen(addr, f.cfg.AdvertisedPort, f.cfg.DiscoveryToken, f.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to start discovery responder: %w", err)
	}
	return r, nil
}
