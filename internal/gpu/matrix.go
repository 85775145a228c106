package gpu

// RGB-to-YUV conversion matrices for the render/convert shaders. Each
// matrix is three vec4 rows (Y, U, V); columns are (R, G, B, bias). The
// shaders evaluate dot(row, pix) with pix.a pinned to 1.0, so the bias
// lands in the w component exactly where a fourth coefficient would.
//
// Coefficients mirror the fixed-point ICT constants in
// rcarmo-go-rdp's internal/codec/rfx/ycbcr.go (same BT.601 transform,
// opposite direction), converted to normalized float here since these
// run as GLSL uniforms against texture samples in [0,1] rather than
// 11.5 fixed-point DWT coefficients.
type ColorMatrix struct {
	Y [4]float32
	U [4]float32
	V [4]float32
}

// MatrixBT601Studio is ITU-R BT.601 with studio (16-235/16-240) range,
// the default for the tile-packed YUV420/422/444 shaders.
var MatrixBT601Studio = ColorMatrix{
	Y: [4]float32{0.256788, 0.504129, 0.097906, 0.0625},
	U: [4]float32{-0.148223, -0.290993, 0.439216, 0.5},
	V: [4]float32{0.439216, -0.367788, -0.071427, 0.5},
}

// MatrixBT709Full is ITU-R BT.709 with full (0-255) range, selectable
// per monitor for clients that negotiate the wide-gamut capability.
var MatrixBT709Full = ColorMatrix{
	Y: [4]float32{0.212600, 0.715200, 0.072200, 0.0},
	U: [4]float32{-0.114570, -0.385430, 0.500000, 0.5},
	V: [4]float32{0.500000, -0.454150, -0.045850, 0.5},
}

// MatrixProgressiveWavelet matches the coefficients MS-RDPEGFX progressive
// codec callers expect when chaining this helper's output into a wavelet
// encode stage: full-range BT.601 luma (0.299/0.587/0.114) and symmetric
// +/-0.5 chroma, with no bias pre-added, since the wavelet stage applies
// its own DC shift (mirrors YLevelShift in ycbcr.go, applied at decode
// rather than here).
var MatrixProgressiveWavelet = ColorMatrix{
	Y: [4]float32{0.299, 0.587, 0.114, 0.0},
	U: [4]float32{-0.168736, -0.331264, 0.5, 0.0},
	V: [4]float32{0.5, -0.418688, -0.081312, 0.0},
}
