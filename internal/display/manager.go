package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures a Manager. Optional collaborators may be nil; the
// matching feature is then absent.
type Options struct {
	Composer Composer
	Logger   *log.Logger

	Local           LocalOptions
	OverlaySettings OverlaySettings
	CastController  CastController
	AuxiliarySource SurfaceSizeSource

	Permissions PermissionChecker
	Projections ProjectionService

	// CoreOnly registers only the local-panel and virtual adapters.
	CoreOnly bool
	// SingleDisplayDemo ignores every display but the default one.
	SingleDisplayDemo bool
}

// Manager owns every display device and logical display. All state is
// guarded by one lock; adapters post their notifications to a handler
// goroutine and listeners are called from a separate dispatch goroutine.
type Manager struct {
	syncRoot sync.Mutex
	log      *log.Logger
	opts     Options
	composer Composer

	handler  *Handler
	dispatch *Handler
	ui       *Handler
	listener *adapterListener

	adapters        []Adapter
	devices         []DisplayDevice
	logicalDisplays map[int]*LogicalDisplay
	nextDisplayID   int

	localAdapter     *localDisplayAdapter
	virtualAdapter   *virtualDisplayAdapter
	castAdapter      *castDisplayAdapter
	overlayAdapter   *overlayDisplayAdapter
	auxiliaryAdapter *auxiliaryDisplayAdapter

	globalDisplayState DisplayState
	pendingTraversal   bool

	defaultViewport       Viewport
	externalTouchViewport Viewport

	windowManager        WindowManager
	inputRouter          InputRouter
	powerCallbacks       PowerCallbacks
	transactionListeners []TransactionListener

	callbacks        map[int]*callbackRecord
	castScanRequests int

	defaultReady     chan struct{}
	defaultSignalled bool
	additionalDone   bool
	closed           bool
}

// callbackRecord is one registered listener, keyed by caller pid.
type callbackRecord struct {
	pid               int
	listener          Listener
	castScanRequested bool
}

// New creates a manager. Nothing is discovered until Start.
func New(opts Options) (*Manager, error) {
	if opts.Composer == nil {
		return nil, fmt.Errorf("%w: composer is required", ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	m := &Manager{
		log:                opts.Logger,
		opts:               opts,
		composer:           opts.Composer,
		logicalDisplays:    make(map[int]*LogicalDisplay),
		nextDisplayID:      DefaultDisplayID + 1,
		globalDisplayState: StateOn,
		callbacks:          make(map[int]*callbackRecord),
		defaultReady:       make(chan struct{}),
	}
	m.listener = &adapterListener{m: m}
	m.handler = NewHandler("display", m.log)
	m.dispatch = NewHandler("dispatch", m.log)
	m.ui = NewHandler("ui", m.log)
	return m, nil
}

func (m *Manager) env() adapterEnv {
	return adapterEnv{
		syncRoot: &m.syncRoot,
		handler:  m.handler,
		listener: m.listener,
		composer: m.composer,
		log:      m.log,
	}
}

// Start registers the local-panel adapter, waits up to timeout for the
// default display and then registers the remaining adapters. It returns
// once they are registered.
func (m *Manager) Start(ctx context.Context, timeout time.Duration) error {
	m.RegisterDefaultAdapter()
	if err := m.WaitForDefaultDisplay(ctx, timeout); err != nil {
		return err
	}
	m.RegisterAdditionalAdapters()
	m.handler.RunSync(func() {})
	return nil
}

// RegisterDefaultAdapter registers the local-panel adapter on the handler.
func (m *Manager) RegisterDefaultAdapter() {
	m.handler.Post(func() {
		m.syncRoot.Lock()
		defer m.syncRoot.Unlock()
		if m.localAdapter != nil || m.closed {
			return
		}
		m.localAdapter = newLocalDisplayAdapter(m.env(), m.opts.Local)
		m.registerDisplayAdapterLocked(m.localAdapter)
	})
}

// RegisterAdditionalAdapters registers the virtual adapter and, unless
// running core only, the overlay, cast and auxiliary adapters.
func (m *Manager) RegisterAdditionalAdapters() {
	m.handler.Post(func() {
		m.syncRoot.Lock()
		defer m.syncRoot.Unlock()
		if m.additionalDone || m.closed {
			return
		}
		m.additionalDone = true

		m.virtualAdapter = newVirtualDisplayAdapter(m.env(), m.dispatch)
		m.registerDisplayAdapterLocked(m.virtualAdapter)

		if m.opts.CoreOnly {
			return
		}
		if m.opts.OverlaySettings != nil {
			m.overlayAdapter = newOverlayDisplayAdapter(m.env(), m.ui, m.opts.OverlaySettings)
			m.registerDisplayAdapterLocked(m.overlayAdapter)
		}
		m.castAdapter = newCastDisplayAdapter(m.env(), m.opts.CastController)
		m.registerDisplayAdapterLocked(m.castAdapter)
		if m.opts.AuxiliarySource != nil {
			m.auxiliaryAdapter = newAuxiliaryDisplayAdapter(m.env(), m.opts.AuxiliarySource)
			m.registerDisplayAdapterLocked(m.auxiliaryAdapter)
		}
	})
}

func (m *Manager) registerDisplayAdapterLocked(adapter Adapter) {
	m.log.Debug("registering display adapter", "adapter", adapter.Name())
	m.adapters = append(m.adapters, adapter)
	adapter.RegisterLocked()
}

// WaitForDefaultDisplay blocks until the default logical display exists.
func (m *Manager) WaitForDefaultDisplay(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.defaultReady:
		return nil
	case <-timer.C:
		return ErrDefaultDisplayTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the adapters and the manager's goroutines.
func (m *Manager) Close() {
	m.syncRoot.Lock()
	if m.closed {
		m.syncRoot.Unlock()
		return
	}
	m.closed = true
	local, aux := m.localAdapter, m.auxiliaryAdapter
	m.syncRoot.Unlock()

	if local != nil {
		local.Close()
	}
	if aux != nil {
		aux.Close()
	}
	m.handler.Close()
	m.ui.Close()
	m.dispatch.Close()
}

// adapterListener receives the posted adapter notifications.
type adapterListener struct {
	m *Manager
}

func (l *adapterListener) OnDisplayDeviceEvent(device DisplayDevice, event DeviceEvent) {
	switch event {
	case DeviceAdded:
		l.m.handleDisplayDeviceAdded(device)
	case DeviceChanged:
		l.m.handleDisplayDeviceChanged(device)
	case DeviceRemoved:
		l.m.handleDisplayDeviceRemoved(device)
	}
}

func (l *adapterListener) OnTraversalRequested() {
	l.m.syncRoot.Lock()
	defer l.m.syncRoot.Unlock()
	l.m.scheduleTraversalLocked(false)
}

// deferredWork collects actions that must run once the lock is released.
type deferredWork []func()

func (w *deferredWork) add(fn func()) {
	if fn != nil {
		*w = append(*w, fn)
	}
}

func (w deferredWork) run() {
	for _, fn := range w {
		fn()
	}
}

func (m *Manager) handleDisplayDeviceAdded(device DisplayDevice) {
	var work deferredWork
	m.syncRoot.Lock()
	m.handleDisplayDeviceAddedLocked(device, &work)
	m.syncRoot.Unlock()
	work.run()
}

func (m *Manager) handleDisplayDeviceAddedLocked(device DisplayDevice, work *deferredWork) {
	info := device.InfoLocked()
	if containsDevice(m.devices, device) {
		m.log.Warn("Attempted to add already added display device", "info", info)
		return
	}

	m.log.Info("Display device added", "info", info)
	m.devices = append(m.devices, device)
	m.addLogicalDisplayLocked(device)
	work.add(m.updateDisplayStateLocked(device))
	m.scheduleTraversalLocked(false)
}

func (m *Manager) handleDisplayDeviceChanged(device DisplayDevice) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	if !containsDevice(m.devices, device) {
		m.log.Warn("Attempted to change non-existent display device", "uniqueId", device.UniqueID())
		return
	}

	device.ApplyPendingChangesLocked()
	m.log.Info("Display device changed", "info", device.InfoLocked())
	if m.updateLogicalDisplaysLocked() {
		m.scheduleTraversalLocked(false)
	}
}

func (m *Manager) handleDisplayDeviceRemoved(device DisplayDevice) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	m.handleDisplayDeviceRemovedLocked(device)
}

func (m *Manager) handleDisplayDeviceRemovedLocked(device DisplayDevice) {
	idx := -1
	for i, d := range m.devices {
		if d == device {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.log.Warn("Attempted to remove non-existent display device", "uniqueId", device.UniqueID())
		return
	}

	m.log.Info("Display device removed", "uniqueId", device.UniqueID())
	m.devices = append(m.devices[:idx], m.devices[idx+1:]...)
	m.updateLogicalDisplaysLocked()
	m.scheduleTraversalLocked(false)
}

func (m *Manager) updateDisplayStateLocked(device DisplayDevice) func() {
	if device.InfoLocked().Flags&FlagNeverBlank != 0 {
		return nil
	}
	return device.RequestDisplayStateLocked(m.globalDisplayState)
}

func (m *Manager) addLogicalDisplayLocked(device DisplayDevice) {
	info := device.InfoLocked()
	isDefault := info.Flags&FlagDefaultDisplay != 0
	if isDefault && m.logicalDisplays[DefaultDisplayID] != nil {
		m.log.Warn("Ignoring attempt to add a second default display", "info", info)
		isDefault = false
	}

	if !isDefault && m.opts.SingleDisplayDemo {
		m.log.Info("Not creating a logical display for a secondary display because single display demo mode is enabled", "info", info)
		return
	}

	displayID := m.assignDisplayIDLocked(isDefault)
	display := newLogicalDisplay(displayID, displayID, device)
	display.UpdateLocked(m.devices)
	if !display.IsValidLocked() {
		m.log.Warn("Ignoring display device because the logical display created from it was not considered valid", "info", info)
		return
	}

	m.logicalDisplays[displayID] = display
	if isDefault && !m.defaultSignalled {
		m.defaultSignalled = true
		close(m.defaultReady)
	}
	m.sendDisplayEventLocked(displayID, EventDisplayAdded)
}

func (m *Manager) assignDisplayIDLocked(isDefault bool) int {
	if isDefault {
		return DefaultDisplayID
	}
	id := m.nextDisplayID
	m.nextDisplayID++
	return id
}

// updateLogicalDisplaysLocked refreshes every logical display from its
// device, removing those whose device went away. It reports whether
// anything changed.
func (m *Manager) updateLogicalDisplaysLocked() bool {
	changed := false
	for _, id := range m.sortedDisplayIDsLocked() {
		display := m.logicalDisplays[id]
		before := display.DisplayInfoLocked()

		display.UpdateLocked(m.devices)
		if !display.IsValidLocked() {
			delete(m.logicalDisplays, id)
			m.sendDisplayEventLocked(id, EventDisplayRemoved)
			changed = true
		} else if display.DisplayInfoLocked() != before {
			m.sendDisplayEventLocked(id, EventDisplayChanged)
			changed = true
		}
	}
	return changed
}

func (m *Manager) sortedDisplayIDsLocked() []int {
	ids := make([]int, 0, len(m.logicalDisplays))
	for id := range m.logicalDisplays {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *Manager) findLogicalDisplayForDeviceLocked(device DisplayDevice) *LogicalDisplay {
	for _, display := range m.logicalDisplays {
		if display.PrimaryDeviceLocked() == device {
			return display
		}
	}
	return nil
}

// scheduleTraversalLocked asks the window manager for a traversal unless
// one is already pending. inTraversal is set when called from within a
// traversal, which will pick the change up itself.
func (m *Manager) scheduleTraversalLocked(inTraversal bool) {
	if m.pendingTraversal || m.windowManager == nil {
		return
	}
	m.pendingTraversal = true
	if !inTraversal {
		wm := m.windowManager
		m.handler.Post(wm.RequestTraversalFromDisplayManager)
	}
}

// PerformTraversalInTransactionFromWindowManager configures every device
// for its logical display. The window manager calls it in response to
// RequestTraversalFromDisplayManager.
func (m *Manager) PerformTraversalInTransactionFromWindowManager() {
	m.syncRoot.Lock()
	m.pendingTraversal = false
	m.performTraversalInTransactionLocked()
	listeners := append([]TransactionListener(nil), m.transactionListeners...)
	m.syncRoot.Unlock()

	for _, l := range listeners {
		l.OnDisplayTransaction()
	}
}

func (m *Manager) performTraversalInTransactionLocked() {
	var calc viewportCalculator
	for _, device := range m.devices {
		m.configureDisplayInTransactionLocked(device, &calc)
		device.PerformTraversalInTransactionLocked()
	}
	m.defaultViewport = calc.defaultViewport
	m.externalTouchViewport = calc.externalTouchViewport

	if m.inputRouter != nil {
		m.handler.Post(m.updateViewports)
	}
}

func (m *Manager) configureDisplayInTransactionLocked(device DisplayDevice, calc *viewportCalculator) {
	info := device.InfoLocked()
	ownContentOnly := info.Flags&FlagOwnContentOnly != 0

	own := m.findLogicalDisplayForDeviceLocked(device)
	display := own
	if !ownContentOnly {
		if display != nil && !display.HasContentLocked() {
			display = nil
		}
		if display == nil {
			display = m.logicalDisplays[DefaultDisplayID]
		}
	}

	if display == nil {
		m.log.Warn("Missing logical display to use for physical display device", "uniqueId", device.UniqueID())
		return
	}

	display.ConfigureDisplayInTransactionLocked(device, info.State == StateOff)
	calc.offer(display, device, info, display == own && own.HasContentLocked())
}

func (m *Manager) updateViewports() {
	m.syncRoot.Lock()
	router := m.inputRouter
	defaultViewport := m.defaultViewport
	externalTouchViewport := m.externalTouchViewport
	m.syncRoot.Unlock()

	if router != nil {
		router.SetDisplayViewports(defaultViewport, externalTouchViewport)
	}
}

// RequestDisplayState changes the global display state. Devices are
// blanked before the power callbacks hear about OFF, and unblanked after
// they hear about anything else.
func (m *Manager) RequestDisplayState(state DisplayState) {
	m.syncRoot.Lock()
	callbacks := m.powerCallbacks
	m.syncRoot.Unlock()

	if state == StateOff {
		m.requestGlobalDisplayState(state)
	}
	if callbacks != nil {
		callbacks.OnDisplayStateChange(state)
	}
	if state != StateOff {
		m.requestGlobalDisplayState(state)
	}
}

func (m *Manager) requestGlobalDisplayState(state DisplayState) {
	var work deferredWork
	m.syncRoot.Lock()
	if m.globalDisplayState != state {
		m.globalDisplayState = state
		for _, device := range m.devices {
			work.add(m.updateDisplayStateLocked(device))
		}
		m.scheduleTraversalLocked(false)
	}
	m.syncRoot.Unlock()
	work.run()
}

// GlobalDisplayState returns the last requested global state.
func (m *Manager) GlobalDisplayState() DisplayState {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	return m.globalDisplayState
}

// GetDisplayInfo returns the info of a display the caller may see.
func (m *Manager) GetDisplayInfo(displayID int, caller Caller) (DisplayInfo, bool) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	display := m.logicalDisplays[displayID]
	if display == nil {
		return DisplayInfo{}, false
	}
	info := display.DisplayInfoLocked()
	if !info.HasAccess(caller.UID) {
		return DisplayInfo{}, false
	}
	return info, true
}

// GetDisplayIDs returns the sorted ids of the displays the caller may see.
func (m *Manager) GetDisplayIDs(caller Caller) []int {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	ids := make([]int, 0, len(m.logicalDisplays))
	for _, id := range m.sortedDisplayIDsLocked() {
		if m.logicalDisplays[id].DisplayInfoLocked().HasAccess(caller.UID) {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetViewports returns the viewports computed by the last traversal.
func (m *Manager) GetViewports() (defaultViewport, externalTouchViewport Viewport) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	return m.defaultViewport, m.externalTouchViewport
}

// RegisterListener registers the caller's listener. Each process may hold
// one. The returned function unregisters it as if the caller died.
func (m *Manager) RegisterListener(caller Caller, listener Listener) (func(), error) {
	if listener == nil {
		return nil, fmt.Errorf("%w: listener must not be nil", ErrInvalidArgument)
	}

	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	if _, ok := m.callbacks[caller.PID]; ok {
		return nil, fmt.Errorf("%w: the calling process has already registered a listener", ErrAlreadyRegistered)
	}
	record := &callbackRecord{pid: caller.PID, listener: listener}
	m.callbacks[caller.PID] = record
	return func() { m.onCallbackDied(record) }, nil
}

func (m *Manager) onCallbackDied(record *callbackRecord) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	if m.callbacks[record.pid] == record {
		delete(m.callbacks, record.pid)
		m.log.Info("Display listener died", "pid", record.pid)
	}
	m.stopCastScanLocked(record)
}

func (m *Manager) sendDisplayEventLocked(displayID int, event DisplayEvent) {
	m.dispatch.Post(func() {
		m.deliverDisplayEvent(displayID, event)
	})
}

func (m *Manager) deliverDisplayEvent(displayID int, event DisplayEvent) {
	m.syncRoot.Lock()
	records := make([]*callbackRecord, 0, len(m.callbacks))
	for _, r := range m.callbacks {
		records = append(records, r)
	}
	m.syncRoot.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].pid < records[j].pid })
	for _, r := range records {
		if err := r.listener.OnDisplayEvent(displayID, event); err != nil {
			m.log.Info("Failed to notify process that displays changed, assuming it died", "pid", r.pid, "err", err)
			m.onCallbackDied(r)
		}
	}
}

// StartCastScan asks the cast controller to scan on behalf of caller.
func (m *Manager) StartCastScan(caller Caller) error {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	record := m.callbacks[caller.PID]
	if record == nil {
		return ErrNotRegistered
	}
	if !record.castScanRequested {
		record.castScanRequested = true
		m.castScanRequests++
		if m.castScanRequests == 1 && m.castAdapter != nil {
			m.castAdapter.requestStartScanLocked()
		}
	}
	return nil
}

// StopCastScan withdraws the caller's scan request.
func (m *Manager) StopCastScan(caller Caller) error {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	record := m.callbacks[caller.PID]
	if record == nil {
		return ErrNotRegistered
	}
	m.stopCastScanLocked(record)
	return nil
}

func (m *Manager) stopCastScanLocked(record *callbackRecord) {
	if !record.castScanRequested {
		return
	}
	record.castScanRequested = false
	m.castScanRequests--
	if m.castScanRequests == 0 {
		if m.castAdapter != nil {
			m.castAdapter.requestStopScanLocked()
		}
	} else if m.castScanRequests < 0 {
		m.log.Error("Cast scan request count became negative", "count", m.castScanRequests)
		m.castScanRequests = 0
	}
}

// CastListener returns the adapter a cast controller reports to, or nil
// when the cast adapter is not registered.
func (m *Manager) CastListener() CastListener {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	if m.castAdapter == nil {
		return nil
	}
	return m.castAdapter
}

// CreateVirtualDisplay validates the request, creates the display and
// returns its logical id along with a function that removes the display
// as if its client died.
func (m *Manager) CreateVirtualDisplay(caller Caller, req VirtualDisplayRequest) (int, func(), error) {
	if req.Token == "" {
		return InvalidDisplayID, nil, fmt.Errorf("%w: client token must not be empty", ErrInvalidArgument)
	}
	if req.Name == "" {
		return InvalidDisplayID, nil, fmt.Errorf("%w: name must be non-empty", ErrInvalidArgument)
	}
	if req.Width <= 0 || req.Height <= 0 || req.DensityDPI <= 0 {
		return InvalidDisplayID, nil, fmt.Errorf("%w: width, height, and densityDpi must be greater than 0", ErrInvalidArgument)
	}

	flags := NormalizeVirtualDisplayFlags(req.Flags)

	var grant ProjectionGrant
	if req.Projection != "" {
		if m.opts.Projections == nil {
			return InvalidDisplayID, nil, fmt.Errorf("%w: invalid projection grant", ErrSecurity)
		}
		g, err := m.opts.Projections.Resolve(req.Projection)
		if err != nil {
			if errors.Is(err, ErrSecurity) {
				return InvalidDisplayID, nil, err
			}
			return InvalidDisplayID, nil, fmt.Errorf("%w: invalid projection grant: %v", ErrSecurity, err)
		}
		grant = g
		flags = grant.ApplyVirtualDisplayFlags(flags)
	}

	if caller.UID != SystemUID && flags&VirtualAutoMirror != 0 && !m.canProjectVideo(caller, grant) {
		return InvalidDisplayID, nil, fmt.Errorf("%w: requires CAPTURE_VIDEO_OUTPUT or CAPTURE_SECURE_VIDEO_OUTPUT permission, or an appropriate projection grant to create a screen sharing virtual display", ErrSecurity)
	}
	if flags&VirtualSecure != 0 && !m.canProjectSecureVideo(caller, grant) {
		return InvalidDisplayID, nil, fmt.Errorf("%w: requires CAPTURE_SECURE_VIDEO_OUTPUT or an appropriate projection grant to create a secure virtual display", ErrSecurity)
	}

	var work deferredWork
	m.syncRoot.Lock()
	if m.virtualAdapter == nil {
		m.syncRoot.Unlock()
		m.log.Warn("Rejecting request to create virtual display because the virtual display adapter is not available")
		return InvalidDisplayID, nil, ErrAdapterUnavailable
	}

	device, err := m.virtualAdapter.createVirtualDisplayLocked(req, caller, flags, grant)
	if err != nil {
		m.syncRoot.Unlock()
		return InvalidDisplayID, nil, err
	}

	m.handleDisplayDeviceAddedLocked(device, &work)
	display := m.findLogicalDisplayForDeviceLocked(device)
	if display == nil {
		m.log.Warn("Rejecting request to create virtual display because the logical display was not created", "name", req.Name)
		m.virtualAdapter.releaseVirtualDisplayLocked(req.Token)
		m.handleDisplayDeviceRemovedLocked(device)
		m.syncRoot.Unlock()
		work.run()
		return InvalidDisplayID, nil, ErrNotCreated
	}
	displayID := display.DisplayID()
	m.syncRoot.Unlock()
	work.run()

	m.log.Info("Virtual display created", "displayId", displayID, "name", req.Name, "owner", caller.UID, "flags", flags)
	died := func() {
		m.syncRoot.Lock()
		defer m.syncRoot.Unlock()
		m.virtualAdapter.clientDiedLocked(req.Token, device)
	}
	return displayID, died, nil
}

func (m *Manager) canProjectVideo(caller Caller, grant ProjectionGrant) bool {
	if grant != nil && grant.CanProjectVideo() {
		return true
	}
	return m.hasPermission(caller, PermissionCaptureVideoOutput) ||
		m.canProjectSecureVideo(caller, grant)
}

func (m *Manager) canProjectSecureVideo(caller Caller, grant ProjectionGrant) bool {
	if grant != nil && grant.CanProjectSecureVideo() {
		return true
	}
	return m.hasPermission(caller, PermissionCaptureSecureVideoOutput)
}

func (m *Manager) hasPermission(caller Caller, permission Permission) bool {
	if m.opts.Permissions == nil {
		return caller.UID == RootUID || caller.UID == SystemUID
	}
	return m.opts.Permissions.HasPermission(caller, permission)
}

// ResizeVirtualDisplay changes the size of a virtual display. Unknown
// tokens are ignored.
func (m *Manager) ResizeVirtualDisplay(token ClientToken, width, height, densityDPI int) error {
	if width <= 0 || height <= 0 || densityDPI <= 0 {
		return fmt.Errorf("%w: width, height, and densityDpi must be greater than 0", ErrInvalidArgument)
	}
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	if m.virtualAdapter != nil {
		m.virtualAdapter.resizeVirtualDisplayLocked(token, width, height, densityDPI)
	}
	return nil
}

// SetVirtualDisplaySurface attaches or, with an empty surface, detaches
// the buffer target of a virtual display.
func (m *Manager) SetVirtualDisplaySurface(token ClientToken, surface Surface) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	if m.virtualAdapter != nil {
		m.virtualAdapter.setVirtualDisplaySurfaceLocked(token, surface)
	}
}

// ReleaseVirtualDisplay removes a virtual display. Releasing an unknown or
// already released token does nothing.
func (m *Manager) ReleaseVirtualDisplay(token ClientToken) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	if m.virtualAdapter == nil {
		return
	}
	if device := m.virtualAdapter.releaseVirtualDisplayLocked(token); device != nil {
		m.handleDisplayDeviceRemovedLocked(device)
	}
}

// SetOverlayMode switches an overlay display to another of its modes.
func (m *Manager) SetOverlayMode(number, modeIndex int) error {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	if m.overlayAdapter == nil {
		return ErrAdapterUnavailable
	}
	return m.overlayAdapter.setOverlayModeLocked(number, modeIndex)
}

// SetDisplayHasContent is called by the window manager when a display
// gains or loses content of its own. inTraversal is set when the window
// manager reports from inside its traversal and is about to call
// PerformTraversalInTransactionFromWindowManager, so no request is posted.
func (m *Manager) SetDisplayHasContent(displayID int, hasContent, inTraversal bool) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	display := m.logicalDisplays[displayID]
	if display != nil && display.HasContentLocked() != hasContent {
		display.SetHasContentLocked(hasContent)
		m.scheduleTraversalLocked(inTraversal)
	}
}

// SetDisplayInfoOverride lets the window manager override the geometry of
// a display. A nil info clears the override.
func (m *Manager) SetDisplayInfoOverride(displayID int, info *DisplayInfo) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	display := m.logicalDisplays[displayID]
	if display != nil && display.SetDisplayInfoOverrideFromWindowManagerLocked(info) {
		m.sendDisplayEventLocked(displayID, EventDisplayChanged)
		m.scheduleTraversalLocked(false)
	}
}

// SetWindowManager installs the window manager and schedules a traversal.
func (m *Manager) SetWindowManager(wm WindowManager) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	m.windowManager = wm
	m.scheduleTraversalLocked(false)
}

func (m *Manager) SetInputRouter(router InputRouter) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	m.inputRouter = router
}

func (m *Manager) SetPowerCallbacks(callbacks PowerCallbacks) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	m.powerCallbacks = callbacks
}

func (m *Manager) RegisterTransactionListener(l TransactionListener) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	m.transactionListeners = append(m.transactionListeners, l)
}

func (m *Manager) UnregisterTransactionListener(l TransactionListener) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	for i, existing := range m.transactionListeners {
		if existing == l {
			m.transactionListeners = append(m.transactionListeners[:i:i], m.transactionListeners[i+1:]...)
			return
		}
	}
}

// AdapterNames lists the registered adapters in registration order.
func (m *Manager) AdapterNames() []string {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()
	names := make([]string, len(m.adapters))
	for i, a := range m.adapters {
		names[i] = a.Name()
	}
	return names
}

// Dump writes the manager state for diagnostics.
func (m *Manager) Dump(w io.Writer) {
	m.syncRoot.Lock()
	defer m.syncRoot.Unlock()

	fmt.Fprintf(w, "DISPLAY MANAGER\n")
	fmt.Fprintf(w, "  globalDisplayState=%s\n", m.globalDisplayState)
	fmt.Fprintf(w, "  pendingTraversal=%t\n", m.pendingTraversal)
	fmt.Fprintf(w, "  nextNonDefaultDisplayId=%d\n", m.nextDisplayID)
	fmt.Fprintf(w, "  defaultViewport=%s\n", m.defaultViewport)
	fmt.Fprintf(w, "  externalTouchViewport=%s\n", m.externalTouchViewport)
	fmt.Fprintf(w, "  singleDisplayDemo=%t coreOnly=%t\n", m.opts.SingleDisplayDemo, m.opts.CoreOnly)

	fmt.Fprintf(w, "\nDisplay Adapters: size=%d\n", len(m.adapters))
	for _, a := range m.adapters {
		fmt.Fprintf(w, "  ")
		a.DumpLocked(w)
	}

	fmt.Fprintf(w, "\nDisplay Devices: size=%d\n", len(m.devices))
	for _, d := range m.devices {
		fmt.Fprintf(w, "  %s\n", d.InfoLocked())
		d.DumpLocked(w)
	}

	fmt.Fprintf(w, "\nLogical Displays: size=%d\n", len(m.logicalDisplays))
	for _, id := range m.sortedDisplayIDsLocked() {
		m.logicalDisplays[id].dumpLocked(w)
	}

	fmt.Fprintf(w, "\nCallbacks: size=%d castScanRequests=%d\n", len(m.callbacks), m.castScanRequests)
}
