// Package server wires the display manager, its collaborators and the IPC
// socket together from the daemon configuration.
package server

import (
	"context"
	"fmt"
	"os"

	"github.com/bnema/displaymgr/internal/compositor"
	"github.com/bnema/displaymgr/internal/config"
	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/logger"
	"github.com/bnema/displaymgr/internal/monitor"
	"github.com/bnema/displaymgr/internal/surface"
	"github.com/charmbracelet/log"
)

// Version is reported by the status operation. The command line sets it.
var Version = "dev"

// Server represents the running daemon
type Server struct {
	config *config.Config
	log    *log.Logger

	manager  *display.Manager
	recorder *compositor.Recorder
	host     *compositor.Host
	grants   *display.GrantRegistry
	input    *inputRouter

	monitors  *monitor.Display
	auxiliary *surface.DBusSource

	ipc *ipc.SocketServer
}

// New builds the manager and everything around it. Nothing runs until
// Start.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{
		config:   cfg,
		log:      logger.Named("server"),
		recorder: compositor.NewRecorder(logger.Named("compositor")),
		grants:   display.NewGrantRegistry(),
	}

	for _, g := range cfg.Security.ProjectionGrants {
		kind, err := display.ParseProjectionType(g.Type)
		if err != nil {
			return nil, fmt.Errorf("projection grant %q: %w", g.Token, err)
		}
		s.grants.Add(g.Token, kind)
	}

	opts := display.Options{
		Composer:          s.recorder,
		Logger:            logger.Named("display"),
		Local:             s.localOptions(),
		Permissions:       display.NewStaticPermissions(cfg.Security.CaptureVideoUIDs, cfg.Security.CaptureSecureVideoUIDs),
		Projections:       s.grants,
		CoreOnly:          cfg.Server.CoreOnly,
		SingleDisplayDemo: cfg.Server.SingleDisplayDemo,
	}
	if !cfg.Server.CoreOnly {
		opts.OverlaySettings = config.Overlay{}
		if cfg.Auxiliary.Enabled {
			src, err := surface.NewDBusSource(surface.Config{
				Bus:       cfg.Auxiliary.Bus,
				Service:   cfg.Auxiliary.Service,
				Path:      cfg.Auxiliary.Path,
				Interface: cfg.Auxiliary.Interface,
			}, logger.Named("surface"))
			if err != nil {
				s.log.Warn("auxiliary surface unavailable, continuing without it", "err", err)
			} else {
				s.auxiliary = src
				opts.AuxiliarySource = src
			}
		}
	}

	manager, err := display.New(opts)
	if err != nil {
		s.closeSources()
		return nil, fmt.Errorf("failed to create display manager: %w", err)
	}
	s.manager = manager

	s.host = compositor.NewHost(manager, logger.Named("wm"))
	manager.SetWindowManager(s.host)
	manager.RegisterTransactionListener(s.host)
	s.input = newInputRouter(logger.Named("input"))
	manager.SetInputRouter(s.input)
	manager.SetPowerCallbacks(newPowerLog(logger.Named("power")))

	socket, err := ipc.NewSocketServer(cfg.Server.SocketPath, newRequestHandler(s))
	if err != nil {
		s.Stop()
		return nil, fmt.Errorf("failed to create IPC server: %w", err)
	}
	s.ipc = socket

	return s, nil
}

func (s *Server) localOptions() display.LocalOptions {
	local := s.config.Local
	opts := display.LocalOptions{
		Fallback: display.Panel{
			ID:          "fallback",
			Name:        "Built-in Screen",
			Width:       local.Width,
			Height:      local.Height,
			RefreshRate: local.RefreshRate,
			DensityDPI:  local.Density,
			XDPI:        float64(local.Density),
			YDPI:        float64(local.Density),
			Primary:     true,
		},
		PollInterval: local.PollInterval,
	}

	if local.Backend == monitor.BackendNone {
		return opts
	}
	monitors, err := monitor.New(local.Backend)
	if err != nil {
		s.log.Warn("no monitor backend, using the fallback panel", "backend", local.Backend, "err", err)
		return opts
	}
	s.log.Info("monitor backend selected", "backend", monitors.BackendName())
	s.monitors = monitors
	opts.Source = newMonitorPanels(monitors, local.Density)
	return opts
}

// Start brings up the displays, waits for the default one and then
// accepts clients.
func (s *Server) Start(ctx context.Context) error {
	if err := s.manager.Start(ctx, s.config.Server.BootTimeout); err != nil {
		return fmt.Errorf("failed to start display manager: %w", err)
	}
	config.Watch()

	if err := s.ipc.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	s.log.Info("display manager ready", "pid", os.Getpid(), "socket", s.ipc.SocketPath())
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	if s.ipc != nil {
		s.ipc.Stop()
	}
	if s.host != nil {
		s.host.Close()
	}
	if s.manager != nil {
		s.manager.Close()
	}
	s.closeSources()
}

func (s *Server) closeSources() {
	if s.auxiliary != nil {
		if err := s.auxiliary.Close(); err != nil {
			s.log.Debug("failed to close auxiliary source", "err", err)
		}
		s.auxiliary = nil
	}
	if s.monitors != nil {
		if err := s.monitors.Close(); err != nil {
			s.log.Debug("failed to close monitor backend", "err", err)
		}
		s.monitors = nil
	}
}

// Manager returns the display manager
func (s *Server) Manager() *display.Manager {
	return s.manager
}

// Recorder returns the in-process compositor state
func (s *Server) Recorder() *compositor.Recorder {
	return s.recorder
}

// Host returns the window manager host
func (s *Server) Host() *compositor.Host {
	return s.host
}

// Grants returns the projection grant registry
func (s *Server) Grants() *display.GrantRegistry {
	return s.grants
}

// SocketPath returns the IPC socket path
func (s *Server) SocketPath() string {
	return s.config.Server.SocketPath
}
