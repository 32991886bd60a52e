package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func configuredDevice(t *testing.T, composer *fakeComposer, token DisplayToken, info DisplayDeviceInfo) (*testDevice, *LogicalDisplay) {
	t.Helper()
	d := newTestDevice(composer, token, info)
	ld := newLogicalDisplay(int(token), int(token), d)
	ld.UpdateLocked([]DisplayDevice{d})
	ld.ConfigureDisplayInTransactionLocked(d, false)
	return d, ld
}

func TestViewportDefaultSlotFirstWins(t *testing.T) {
	composer := newFakeComposer()
	first, firstDisplay := configuredDevice(t, composer, 1, DisplayDeviceInfo{Width: 1920, Height: 1080, Flags: FlagDefaultDisplay})
	second, secondDisplay := configuredDevice(t, composer, 2, DisplayDeviceInfo{Width: 800, Height: 600, Flags: FlagDefaultDisplay})

	var calc viewportCalculator
	calc.offer(firstDisplay, first, first.InfoLocked(), true)
	calc.offer(secondDisplay, second, second.InfoLocked(), true)

	assert.True(t, calc.defaultViewport.Valid)
	assert.Equal(t, 1, calc.defaultViewport.DisplayID)
	assert.Equal(t, 1920, calc.defaultViewport.DeviceWidth)
	assert.False(t, calc.externalTouchViewport.Valid)
}

func TestViewportExternalTouchFirstWins(t *testing.T) {
	composer := newFakeComposer()
	a, aDisplay := configuredDevice(t, composer, 1, DisplayDeviceInfo{Width: 1280, Height: 720, Touch: TouchExternal})
	b, bDisplay := configuredDevice(t, composer, 2, DisplayDeviceInfo{Width: 800, Height: 600, Touch: TouchExternal})
	c, cDisplay := configuredDevice(t, composer, 3, DisplayDeviceInfo{Width: 640, Height: 480, Touch: TouchInternal})

	var calc viewportCalculator
	calc.offer(cDisplay, c, c.InfoLocked(), true)
	calc.offer(aDisplay, a, a.InfoLocked(), true)
	calc.offer(bDisplay, b, b.InfoLocked(), true)

	assert.True(t, calc.externalTouchViewport.Valid)
	assert.Equal(t, 1, calc.externalTouchViewport.DisplayID)
	assert.Equal(t, Rect{Right: 1280, Bottom: 720}, calc.externalTouchViewport.PhysicalFrame)
}

func TestViewportMirroringAuxiliaryClaimsExternalSlot(t *testing.T) {
	composer := newFakeComposer()
	aux, auxDisplay := configuredDevice(t, composer, 1, DisplayDeviceInfo{Width: 1280, Height: 720, Touch: TouchExternal, Type: TypeAuxiliary})
	ext, extDisplay := configuredDevice(t, composer, 2, DisplayDeviceInfo{Width: 800, Height: 600, Touch: TouchExternal, Type: TypeExternal})

	var calc viewportCalculator
	calc.offer(auxDisplay, aux, aux.InfoLocked(), false)
	calc.offer(extDisplay, ext, ext.InfoLocked(), true)
	assert.False(t, calc.externalTouchViewport.Valid, "later devices may not take the slot")

	calc = viewportCalculator{}
	calc.offer(auxDisplay, aux, aux.InfoLocked(), true)
	assert.True(t, calc.externalTouchViewport.Valid)
	assert.Equal(t, 1, calc.externalTouchViewport.DisplayID)
}

func TestViewportOrientationSwapsDeviceSize(t *testing.T) {
	composer := newFakeComposer()
	d := newTestDevice(composer, 1, DisplayDeviceInfo{Width: 1920, Height: 1080})
	d.SetProjectionInTransactionLocked(Rotation270, Rect{Right: 1080, Bottom: 1920}, Rect{Right: 1080, Bottom: 1920})

	var v Viewport
	d.PopulateViewportLocked(&v)
	assert.Equal(t, Rotation270, v.Orientation)
	assert.Equal(t, 1080, v.DeviceWidth)
	assert.Equal(t, 1920, v.DeviceHeight)
}

func TestViewportString(t *testing.T) {
	assert.Equal(t, "DisplayViewport{valid=false}", Viewport{}.String())
	assert.Contains(t, Viewport{Valid: true, DisplayID: 2}.String(), "displayId=2")
}
