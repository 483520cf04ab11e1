package decodersdk

import (
	"errors"
	"fmt"

	astiav "github.com/asticode/go-astiav"
)

// autoProbeOrder is the priority list CreateHardwareAccel tries, in turn,
// when asked for HWAccelAuto.
var autoProbeOrder = []HWAccelType{
	HWAccelVideoToolbox, HWAccelD3D11VA, HWAccelDXVA2, HWAccelCUDA, HWAccelVAAPI, HWAccelVDPAU, HWAccelQSV,
}

func (t HWAccelType) deviceType() astiav.HardwareDeviceType {
	switch t {
	case HWAccelVAAPI:
		return astiav.HardwareDeviceTypeVAAPI
	case HWAccelVDPAU:
		return astiav.HardwareDeviceTypeVDPAU
	case HWAccelDXVA2:
		return astiav.HardwareDeviceTypeDXVA2
	case HWAccelD3D11VA:
		return astiav.HardwareDeviceTypeD3D11VA
	case HWAccelVideoToolbox:
		return astiav.HardwareDeviceTypeVideoToolbox
	case HWAccelCUDA:
		return astiav.HardwareDeviceTypeCUDA
	case HWAccelQSV:
		return astiav.HardwareDeviceTypeQSV
	default:
		return astiav.HardwareDeviceTypeNone
	}
}

func (t HWAccelType) String() string {
	switch t {
	case HWAccelAuto:
		return "auto"
	case HWAccelVAAPI:
		return "vaapi"
	case HWAccelVDPAU:
		return "vdpau"
	case HWAccelDXVA2:
		return "dxva2"
	case HWAccelD3D11VA:
		return "d3d11va"
	case HWAccelVideoToolbox:
		return "videotoolbox"
	case HWAccelCUDA:
		return "cuda"
	case HWAccelQSV:
		return "qsv"
	default:
		return "none"
	}
}

// HardwareAccel binds a codec context to a hardware device context and
// negotiates the hardware pixel format during decode, falling back to
// software decode if the device can't be created or the codec has no
// matching hardware config.
type HardwareAccel struct {
	accelType HWAccelType
	deviceCtx *astiav.HardwareDeviceContext
	pixFmt    astiav.PixelFormat
}

// CreateHardwareAccel opens a hardware device for accelType (deviceIndex
// selects among multiple adapters where the platform supports it). If
// accelType is HWAccelAuto, it tries autoProbeOrder in turn and returns
// the first device that opens successfully. Returns (nil, err) if no
// matching device could be opened.
func CreateHardwareAccel(accelType HWAccelType, deviceIndex int) (*HardwareAccel, error) {
	if accelType == HWAccelNone {
		return nil, newError(ErrKindConfigInvalid, "CreateHardwareAccel", errors.New("hwaccel disabled"))
	}

	candidates := []HWAccelType{accelType}
	if accelType == HWAccelAuto {
		candidates = autoProbeOrder
	}

	var lastErr error
	for _, c := range candidates {
		dt := c.deviceType()
		if dt == astiav.HardwareDeviceTypeNone {
			continue
		}

		var device string
		if deviceIndex > 0 {
			device = fmt.Sprintf("%d", deviceIndex)
		}

		deviceCtx, err := astiav.CreateHardwareDeviceContext(dt, device, nil, 0)
		if err != nil || deviceCtx == nil {
			lastErr = err
			continue
		}
		return &HardwareAccel{accelType: c, deviceCtx: deviceCtx}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no usable hardware device")
	}
	return nil, newError(ErrKindConfigInvalid, "CreateHardwareAccel", lastErr)
}

// AccelType reports which concrete backend this instance bound to
// (useful after HWAccelAuto resolves to a specific device).
func (h *HardwareAccel) AccelType() HWAccelType { return h.accelType }

// SetupDecoder attaches the hardware device context to ctx and installs a
// pixel-format negotiation callback preferring the hardware's own pixel
// format, the pattern go-astiav's own hardware-decode examples use.
// Returns false (leaving ctx untouched for software decode) if the codec
// exposes no hardware config matching this accel type.
func (h *HardwareAccel) SetupDecoder(ctx *astiav.CodecContext) bool {
	hwPixFmt := astiav.PixelFormatNone
	for i := 0; ; i++ {
		cfg := ctx.Codec().HardwareConfig(i)
		if cfg == nil {
			break
		}
		if cfg.HardwareDeviceType() == h.accelType.deviceType() {
			hwPixFmt = cfg.PixelFormat()
			break
		}
	}
	if hwPixFmt == astiav.PixelFormatNone {
		return false
	}

	h.pixFmt = hwPixFmt
	ctx.SetHardwareDeviceContext(h.deviceCtx)
	ctx.SetPixelFormatCallback(func(pixelFormats []astiav.PixelFormat) astiav.PixelFormat {
		for _, pf := range pixelFormats {
			if pf == hwPixFmt {
				return pf
			}
		}
		return astiav.PixelFormatNone
	})
	return true
}

// Close releases the underlying hardware device context.
func (h *HardwareAccel) Close() {
	if h.deviceCtx != nil {
		h.deviceCtx.Free()
		h.deviceCtx = nil
	}
}
