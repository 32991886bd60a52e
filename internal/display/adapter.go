package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// DeviceEvent is what an adapter reports about one of its devices.
type DeviceEvent int

const (
	DeviceAdded DeviceEvent = iota + 1
	DeviceChanged
	DeviceRemoved
)

func (e DeviceEvent) String() string {
	switch e {
	case DeviceAdded:
		return "ADDED"
	case DeviceChanged:
		return "CHANGED"
	case DeviceRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// AdapterListener is implemented by the orchestrator. Adapters never call
// it directly; every notification is posted to the manager's handler.
type AdapterListener interface {
	OnDisplayDeviceEvent(device DisplayDevice, event DeviceEvent)
	OnTraversalRequested()
}

// Adapter discovers display devices of one kind.
type Adapter interface {
	Name() string
	// RegisterLocked starts discovery. Devices found synchronously are
	// announced through posted events.
	RegisterLocked()
	DumpLocked(w io.Writer)
}

// adapterEnv is the shared environment handed to every adapter.
type adapterEnv struct {
	syncRoot *sync.Mutex
	handler  *Handler
	listener AdapterListener
	composer Composer
	log      *log.Logger
}

// adapterBase is embedded by every adapter.
type adapterBase struct {
	adapterEnv
	name string
}

func newAdapterBase(env adapterEnv, name string) adapterBase {
	return adapterBase{
		adapterEnv: env,
		name:       name,
	}
}

func (a *adapterBase) Name() string { return a.name }

func (a *adapterBase) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "%s\n", a.name)
}

func (a *adapterBase) sendDeviceEventLocked(device DisplayDevice, event DeviceEvent) {
	listener := a.listener
	a.handler.Post(func() {
		listener.OnDisplayDeviceEvent(device, event)
	})
}

func (a *adapterBase) sendTraversalRequestLocked() {
	listener := a.listener
	a.handler.Post(listener.OnTraversalRequested)
}
