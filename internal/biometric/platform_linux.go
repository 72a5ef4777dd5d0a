//go:build linux

package biometric

import (
	"context"
	"os/user"
	"sync"

	"github.com/godbus/dbus/v5"
)

// fprintd D-Bus constants
const (
	fprintService         = "net.reactivated.Fprint"
	fprintManagerPath     = "/net/reactivated/Fprint/Manager"
	fprintManagerIface    = "net.reactivated.Fprint.Manager"
	fprintDeviceIface     = "net.reactivated.Fprint.Device"
	fprintVerifyStatusSig = "net.reactivated.Fprint.Device.VerifyStatus"
)

// fprintd verify results
const (
	verifyMatch        = "verify-match"
	verifyNoMatch      = "verify-no-match"
	verifyDisconnected = "verify-disconnected"
	verifyUnknownError = "verify-unknown-error"
)

// fprintdPrompt drives a fingerprint challenge through fprintd on the
// system bus. The reader is the only biometric hardware fprintd
// exposes, so the method is always touchId.
type fprintdPrompt struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func newPlatformPrompt() Prompt {
	return &fprintdPrompt{}
}

// bus returns the system bus connection, dialing lazily.
func (p *fprintdPrompt) bus() (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

// device resolves the default fingerprint device object path.
func (p *fprintdPrompt) device() (dbus.BusObject, error) {
	conn, err := p.bus()
	if err != nil {
		return nil, err
	}

	manager := conn.Object(fprintService, fprintManagerPath)
	var path dbus.ObjectPath
	if err := manager.Call(fprintManagerIface+".GetDefaultDevice", 0).Store(&path); err != nil {
		return nil, err
	}
	return conn.Object(fprintService, path), nil
}

func (p *fprintdPrompt) HardwarePresent() bool {
	_, err := p.device()
	return err == nil
}

func (p *fprintdPrompt) Enrolled() bool {
	dev, err := p.device()
	if err != nil {
		return false
	}

	u, err := user.Current()
	if err != nil {
		return false
	}

	var fingers []string
	if err := dev.Call(fprintDeviceIface+".ListEnrolledFingers", 0, u.Username).Store(&fingers); err != nil {
		return false
	}
	return len(fingers) > 0
}

func (p *fprintdPrompt) Method() Method {
	return MethodTouchID
}

// Challenge claims the device, starts a verification, and waits for a
// terminal VerifyStatus signal or context cancellation.
func (p *fprintdPrompt) Challenge(ctx context.Context, message string) (Outcome, error) {
	if !p.Enrolled() {
		return OutcomeNotEnrolled, nil
	}

	conn, err := p.bus()
	if err != nil {
		return OutcomeNotAvailable, err
	}
	dev, err := p.device()
	if err != nil {
		return OutcomeNotAvailable, err
	}

	if err := dev.Call(fprintDeviceIface+".Claim", 0, "").Err; err != nil {
		return OutcomeNotAvailable, err
	}
	defer dev.Call(fprintDeviceIface+".Release", 0)

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dev.Path()),
		dbus.WithMatchInterface(fprintDeviceIface),
		dbus.WithMatchMember("VerifyStatus"),
	); err != nil {
		return OutcomeNotAvailable, err
	}
	defer conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(dev.Path()),
		dbus.WithMatchInterface(fprintDeviceIface),
		dbus.WithMatchMember("VerifyStatus"),
	)

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	if err := dev.Call(fprintDeviceIface+".VerifyStart", 0, "any").Err; err != nil {
		return OutcomeNotAvailable, err
	}
	defer dev.Call(fprintDeviceIface+".VerifyStop", 0)

	for {
		select {
		case <-ctx.Done():
			return OutcomeSystemCancel, nil
		case sig, ok := <-signals:
			if !ok {
				return OutcomeFailed, nil
			}
			if sig.Name != fprintVerifyStatusSig || len(sig.Body) < 2 {
				continue
			}
			result, _ := sig.Body[0].(string)
			done, _ := sig.Body[1].(bool)
			if !done {
				// Retry-scan style interim statuses; keep waiting.
				continue
			}
			switch result {
			case verifyMatch:
				return OutcomeSuccess, nil
			case verifyNoMatch:
				return OutcomeFailed, nil
			case verifyDisconnected:
				return OutcomeNotAvailable, nil
			default:
				return OutcomeFailed, nil
			}
		}
	}
}
