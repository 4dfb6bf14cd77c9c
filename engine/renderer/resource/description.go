package resource

// Format enumerates the pixel formats the frame core cares about. Only the
// byte footprint matters here; sampling semantics live in the shaders.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatR8Unorm
	FormatR16Float
	FormatR32Float
	FormatRG11B10Float
	FormatRGBA8Unorm
	FormatRGBA8UnormSRGB
	FormatRGBA16Float
	FormatD24S8
)

// BytesPerPixel returns the byte footprint of one texel.
func (f Format) BytesPerPixel() uint64 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatR16Float:
		return 2
	case FormatR32Float, FormatRG11B10Float, FormatRGBA8Unorm, FormatRGBA8UnormSRGB, FormatD24S8:
		return 4
	case FormatRGBA16Float:
		return 8
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case FormatR8Unorm:
		return "R8Unorm"
	case FormatR16Float:
		return "R16Float"
	case FormatR32Float:
		return "R32Float"
	case FormatRG11B10Float:
		return "RG11B10Float"
	case FormatRGBA8Unorm:
		return "RGBA8Unorm"
	case FormatRGBA8UnormSRGB:
		return "RGBA8UnormSRGB"
	case FormatRGBA16Float:
		return "RGBA16Float"
	case FormatD24S8:
		return "D24S8"
	}
	return "Unknown"
}

type BindFlag uint8

const (
	BindShaderResource BindFlag = 1 << iota
	BindUnorderedAccess
	BindRenderTarget
	BindDepthStencil
)

type TextureDescription struct {
	Width      uint32
	Height     uint32
	Depth      uint32
	Format     Format
	MipMapping bool
	BindFlags  BindFlag
}

// MipLevels returns the full mip chain length for the description, or 1
// when mip mapping is disabled.
func (d TextureDescription) MipLevels() uint32 {
	if !d.MipMapping {
		return 1
	}
	levels := uint32(1)
	w, h := d.Width, d.Height
	for w > 1 || h > 1 {
		w = max(w/2, 1)
		h = max(h/2, 1)
		levels++
	}
	return levels
}

// ByteSize estimates the GPU memory footprint, mips included.
func (d TextureDescription) ByteSize() uint64 {
	depth := uint64(max(d.Depth, 1))
	size := uint64(0)
	w, h := uint64(d.Width), uint64(d.Height)
	for level := uint32(0); level < d.MipLevels(); level++ {
		size += w * h * depth * d.Format.BytesPerPixel()
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	return size
}

type BufferDescription struct {
	Size       uint64
	Stride     uint32
	UAVCounter bool
	BindFlags  BindFlag
}

func (d BufferDescription) ByteSize() uint64 {
	size := d.Size
	if d.Stride > 0 {
		size = d.Size * uint64(d.Stride)
	}
	if d.UAVCounter {
		size += 4
	}
	return size
}
