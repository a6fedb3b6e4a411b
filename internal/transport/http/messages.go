package http

import "serialgate/internal/activation"

// Client-facing messages for the desktop application. The English/Thai
// pairs are what the client displays verbatim, so they must not change
// without coordinating a client release.
const (
	msgActivated        = "Serial successfully used. Program is opening.\nซีเรียลสำเร็จแล้วโปรแกรมกำลังเปิด"
	msgAlreadyBoundSame = "This computer already uses serial\nคอมพิวเตอร์เครื่องนี้ใช้ซีเรียลแล้ว.."
	msgDeviceBound      = "This computer is already bound to another serial.\nคอมพิวเตอร์เครื่องนี้ผูกกับซีเรียลอื่นแล้ว"
	msgSerialConsumed   = "Serial is already in use.\nซีเรียลถูกใช้งานแล้ว"
	msgInvalidSerial    = "The serial is invalid!.\nซีเรียลไม่ถูกต้อง"
	msgNoUsageYet       = "This computer is not running serial yet."
	msgUpdateRequired   = "Update required."
	msgVersionOK        = "Version supported."
)

// activationMessage maps an engine result to the client message and
// whether the outcome travels in the "message" or "error" key.
func activationMessage(result activation.Result) (msg string, isError bool) {
	switch result {
	case activation.Activated:
		return msgActivated, false
	case activation.AlreadyBoundSame:
		// Informational: the device already runs this serial.
		return msgAlreadyBoundSame, false
	case activation.DeviceAlreadyBound:
		return msgDeviceBound, true
	case activation.SerialAlreadyConsumed:
		return msgSerialConsumed, true
	case activation.InvalidSerial:
		return msgInvalidSerial, true
	default:
		return "", true
	}
}
