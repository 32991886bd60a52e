// Package surface reports the size of the auxiliary off-screen surface
// published by a D-Bus service.
package surface

import (
	"fmt"
	"sync"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/charmbracelet/log"
	"github.com/godbus/dbus/v5"
)

const (
	methodGetSize     = "GetSize"
	signalSizeChanged = "SizeChanged"
)

// Config locates the service.
type Config struct {
	Bus       string // "session" or "system"
	Service   string
	Path      string
	Interface string
}

// DBusSource is a display.SurfaceSizeSource backed by a D-Bus object
// exposing GetSize() (iii) and the SizeChanged(iii) signal.
type DBusSource struct {
	cfg  Config
	log  *log.Logger
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewDBusSource opens a private connection to the configured bus.
func NewDBusSource(cfg Config, logger *log.Logger) (*DBusSource, error) {
	var conn *dbus.Conn
	var err error
	switch cfg.Bus {
	case "session", "":
		conn, err = dbus.ConnectSessionBus()
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", cfg.Bus)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", cfg.Bus, err)
	}
	return newDBusSource(conn, cfg, logger), nil
}

func newDBusSource(conn *dbus.Conn, cfg Config, logger *log.Logger) *DBusSource {
	if logger == nil {
		logger = log.Default()
	}
	return &DBusSource{
		cfg:  cfg,
		log:  logger,
		conn: conn,
		obj:  conn.Object(cfg.Service, dbus.ObjectPath(cfg.Path)),
	}
}

// CurrentSize asks the service for the surface size.
func (s *DBusSource) CurrentSize() (display.SurfaceSize, error) {
	var width, height, density int32
	call := s.obj.Call(s.cfg.Interface+"."+methodGetSize, 0)
	if err := call.Store(&width, &height, &density); err != nil {
		return display.SurfaceSize{}, fmt.Errorf("failed to call %s: %w", methodGetSize, err)
	}
	return display.SurfaceSize{Width: int(width), Height: int(height), DensityDPI: int(density)}, nil
}

// Watch subscribes to SizeChanged and calls fn with every new size.
func (s *DBusSource) Watch(fn func(display.SurfaceSize)) (func(), error) {
	if err := s.obj.AddMatchSignal(s.cfg.Interface, signalSizeChanged).Err; err != nil {
		return nil, fmt.Errorf("failed to add match rule: %w", err)
	}

	ch := make(chan *dbus.Signal, 10)
	s.conn.Signal(ch)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				if !s.matches(sig) {
					continue
				}
				size, err := sizeFromBody(sig.Body)
				if err != nil {
					s.log.Warn("ignoring malformed size signal", "err", err)
					continue
				}
				fn(size)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.conn.RemoveSignal(ch)
			if err := s.obj.RemoveMatchSignal(s.cfg.Interface, signalSizeChanged).Err; err != nil {
				s.log.Debug("failed to remove match rule", "err", err)
			}
			close(stop)
			<-done
		})
	}, nil
}

func (s *DBusSource) matches(sig *dbus.Signal) bool {
	return sig != nil &&
		sig.Name == s.cfg.Interface+"."+signalSizeChanged &&
		string(sig.Path) == s.cfg.Path
}

// Close closes the bus connection.
func (s *DBusSource) Close() error {
	return s.conn.Close()
}

func sizeFromBody(body []interface{}) (display.SurfaceSize, error) {
	if len(body) != 3 {
		return display.SurfaceSize{}, fmt.Errorf("expected 3 values, got %d", len(body))
	}
	var v [3]int32
	for i, b := range body {
		n, ok := b.(int32)
		if !ok {
			return display.SurfaceSize{}, fmt.Errorf("value %d is %T, want int32", i, b)
		}
		v[i] = n
	}
	return display.SurfaceSize{Width: int(v[0]), Height: int(v[1]), DensityDPI: int(v[2])}, nil
}
