package decodersdk

import (
	"fmt"

	astiav "github.com/asticode/go-astiav"
)

// pixelFormatConverter runs decoded software frames through FFmpeg's
// swscale to a fixed output pixel format, rebuilding the scale context
// only when the source dimensions or pixel format change.
type pixelFormatConverter struct {
	ssc    *astiav.SoftwareScaleContext
	dst    *astiav.Frame
	srcW   int
	srcH   int
	srcPix astiav.PixelFormat
	dstPix astiav.PixelFormat
}

func newPixelFormatConverter(dstPix astiav.PixelFormat) *pixelFormatConverter {
	return &pixelFormatConverter{dstPix: dstPix}
}

func (c *pixelFormatConverter) close() {
	if c.dst != nil {
		c.dst.Free()
		c.dst = nil
	}
	if c.ssc != nil {
		c.ssc.Free()
		c.ssc = nil
	}
}

func (c *pixelFormatConverter) ensure(src *astiav.Frame) error {
	sw, sh := src.Width(), src.Height()
	sp := src.PixelFormat()

	if c.ssc != nil && sw == c.srcW && sh == c.srcH && sp == c.srcPix {
		return nil
	}

	c.close()

	flags := astiav.NewSoftwareScaleContextFlags()
	ssc, err := astiav.CreateSoftwareScaleContext(sw, sh, sp, sw, sh, c.dstPix, flags)
	if err != nil {
		return fmt.Errorf("pixelFormatConverter: CreateSoftwareScaleContext(%dx%d %v -> %v): %w", sw, sh, sp, c.dstPix, err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(sw)
	dst.SetHeight(sh)
	dst.SetPixelFormat(c.dstPix)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("pixelFormatConverter: dst.AllocBuffer: %w", err)
	}

	c.ssc = ssc
	c.dst = dst
	c.srcW, c.srcH, c.srcPix = sw, sh, sp
	return nil
}

// convert scales src into the converter's fixed output pixel format and
// returns the converted frame. The returned frame is owned by the
// converter and is only valid until the next call to convert.
func (c *pixelFormatConverter) convert(src *astiav.Frame) (*astiav.Frame, error) {
	if err := c.ensure(src); err != nil {
		return nil, err
	}
	if err := c.ssc.ScaleFrame(src, c.dst); err != nil {
		return nil, fmt.Errorf("pixelFormatConverter: ScaleFrame: %w", err)
	}
	return c.dst, nil
}
