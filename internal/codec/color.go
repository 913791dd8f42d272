package codec

import "fmt"

// ColorFormat is an OMX color format constant as reported by hardware codecs.
type ColorFormat int

const (
	ColorYUV420Planar     ColorFormat = 19
	ColorYUV420SemiPlanar ColorFormat = 21
	ColorTIYUV420PackedSP ColorFormat = 0x7f000100
	ColorSurface          ColorFormat = 0x7F000789
	ColorQCOMYUV420SP     ColorFormat = 0x7fa30c00
)

var colorNames = map[ColorFormat]string{
	1:  "Monochrome",
	2:  "8bitRGB332",
	3:  "12bitRGB444",
	4:  "16bitARGB4444",
	5:  "16bitARGB1555",
	6:  "16bitRGB565",
	7:  "16bitBGR565",
	8:  "18bitRGB666",
	9:  "18bitARGB1665",
	10: "19bitARGB1666",
	11: "24bitRGB888",
	12: "24bitBGR888",
	13: "24bitARGB1887",
	14: "25bitARGB1888",
	15: "32bitBGRA8888",
	16: "32bitARGB8888",
	17: "YUV411Planar",
	18: "YUV411PackedPlanar",
	19: "YUV420Planar",
	20: "YUV420PackedPlanar",
	21: "YUV420SemiPlanar",
	22: "YUV422Planar",
	23: "YUV422PackedPlanar",
	24: "YUV422SemiPlanar",
	25: "YCbYCr",
	26: "YCrYCb",
	27: "CbYCrY",
	28: "CrYCbY",
	29: "YUV444Interleaved",
	30: "RawBayer8bit",
	31: "RawBayer10bit",
	32: "RawBayer8bitcompressed",
	33: "L2",
	34: "L4",
	35: "L8",
	36: "L16",
	37: "L24",
	38: "L32",
	39: "YUV420PackedSemiPlanar",
	40: "YUV422PackedSemiPlanar",
	41: "18BitBGR666",
	42: "24BitARGB6666",
	43: "24BitABGR6666",

	ColorTIYUV420PackedSP: "TI_FormatYUV420PackedSemiPlanar",
	ColorSurface:          "Surface",
	ColorQCOMYUV420SP:     "QCOM_FormatYUV420SemiPlanar",
}

// Name returns the OMX name of the format, or "VENDOR" for values outside
// the known table.
func (c ColorFormat) Name() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return "VENDOR"
}

func (c ColorFormat) String() string {
	return fmt.Sprintf("%s(0x%x)", c.Name(), int(c))
}
