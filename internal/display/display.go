// Package display owns the connection to a screen and its input devices and
// turns raw frames into observations.
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// ErrInvalidMonitor is returned when the configured monitor index does not
// address an attached display.
var ErrInvalidMonitor = errors.New("display: invalid monitor index")

// ErrHostUnavailable is returned for the host driver when no native driver
// was linked into the binary.
var ErrHostUnavailable = errors.New("display: host driver not linked into this binary")

// DisplayInfo describes an attached monitor, indexed from 1.
type DisplayInfo struct {
	Index  int             `json:"index"`
	Bounds image.Rectangle `json:"bounds"`
}

// HostDriver opens and enumerates the native desktop.
type HostDriver struct {
	Open func(monitorIndex int, logger *zap.Logger) (schemas.Device, error)
	List func() []DisplayInfo
}

var (
	hostMu     sync.RWMutex
	hostDriver *HostDriver
)

// RegisterHost installs the native desktop driver. The robotgo backed driver
// calls it from its package init.
func RegisterHost(d HostDriver) {
	hostMu.Lock()
	defer hostMu.Unlock()
	hostDriver = &d
}

func registeredHost() *HostDriver {
	hostMu.RLock()
	defer hostMu.RUnlock()
	return hostDriver
}

// ListDisplays enumerates the attached monitors. It returns nil when no host
// driver is registered.
func ListDisplays() []DisplayInfo {
	h := registeredHost()
	if h == nil || h.List == nil {
		return nil
	}
	return h.List()
}

// Open creates the device selected by cfg.Driver. The caller owns the
// returned device and must Close it.
func Open(ctx context.Context, cfg config.DisplayConfig, logger *zap.Logger) (schemas.Device, error) {
	logger = logger.Named("display").With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case config.DriverHost:
		h := registeredHost()
		if h == nil || h.Open == nil {
			return nil, ErrHostUnavailable
		}
		return h.Open(cfg.MonitorIndex, logger)
	case config.DriverBrowser:
		return NewBrowserDevice(ctx, cfg.Browser, logger)
	case config.DriverFake:
		logger.Warn("Using the fake display driver. No real input will be sent.")
		return NewFakeDevice(schemas.Size{Width: cfg.Browser.Width, Height: cfg.Browser.Height}), nil
	default:
		return nil, fmt.Errorf("display: unknown driver %q", cfg.Driver)
	}
}

// ResolveMonitor picks the capture rectangle for a 1-based monitor index.
// Index 0 addresses the union of every display.
func ResolveMonitor(displays []image.Rectangle, index int) (image.Rectangle, error) {
	if len(displays) == 0 {
		return image.Rectangle{}, fmt.Errorf("%w: no displays attached", ErrInvalidMonitor)
	}
	if index < 0 || index > len(displays) {
		return image.Rectangle{}, fmt.Errorf("%w: %d (have %d)", ErrInvalidMonitor, index, len(displays))
	}
	if index > 0 {
		return displays[index-1], nil
	}

	union := displays[0]
	for _, r := range displays[1:] {
		union = union.Union(r)
	}
	return union, nil
}
