package h264

import (
	"github.com/pkg/errors"
)

const (
	ProfileBaseline = 66
	ProfileMain     = 77
	ProfileHigh     = 100
)

// SPSParams are the stream properties encoded into a baseline sequence
// parameter set.
type SPSParams struct {
	Width  int
	Height int

	// level_idc, e.g. 31 for level 3.1.
	Level int
}

// LevelFor returns the lowest level whose frame size limit covers width x
// height at 30 fps.
func LevelFor(width, height int) int {
	mbs := ((width + 15) / 16) * ((height + 15) / 16)
	switch {
	case mbs <= 99:
		return 10
	case mbs <= 396:
		return 20
	case mbs <= 1620:
		return 30
	case mbs <= 3600:
		return 31
	case mbs <= 8192:
		return 40
	default:
		return 51
	}
}

// BuildSPS encodes a constrained baseline SPS NAL unit. Sizes that are not a
// multiple of 16 are cropped.
func BuildSPS(p SPSParams) (NALU, error) {
	if p.Width <= 0 || p.Height <= 0 || p.Width%2 != 0 || p.Height%2 != 0 {
		return nil, errors.Errorf("h264: invalid SPS size %dx%d", p.Width, p.Height)
	}
	if p.Level == 0 {
		p.Level = LevelFor(p.Width, p.Height)
	}

	mbWidth := (p.Width + 15) / 16
	mbHeight := (p.Height + 15) / 16

	var w bitWriter
	w.writeBits(ProfileBaseline, 8)
	w.writeBits(0xc0, 8) // constraint_set0_flag, constraint_set1_flag
	w.writeBits(uint(p.Level), 8)
	w.writeUE(0) // seq_parameter_set_id
	w.writeUE(0) // log2_max_frame_num_minus4
	w.writeUE(2) // pic_order_cnt_type
	w.writeUE(1) // max_num_ref_frames
	w.writeBit(0)
	w.writeUE(uint(mbWidth - 1))
	w.writeUE(uint(mbHeight - 1))
	w.writeBit(1) // frame_mbs_only_flag
	w.writeBit(1) // direct_8x8_inference_flag

	cropRight := (mbWidth*16 - p.Width) / 2
	cropBottom := (mbHeight*16 - p.Height) / 2
	if cropRight > 0 || cropBottom > 0 {
		w.writeBit(1)
		w.writeUE(0)
		w.writeUE(uint(cropRight))
		w.writeUE(0)
		w.writeUE(uint(cropBottom))
	} else {
		w.writeBit(0)
	}
	w.writeBit(0) // vui_parameters_present_flag

	nalu := NALU{header(3, TypeSPS)}
	return append(nalu, escape(w.trailing())...), nil
}

// BuildPPS encodes the CAVLC picture parameter set matching BuildSPS.
func BuildPPS() NALU {
	var w bitWriter
	w.writeUE(0)  // pic_parameter_set_id
	w.writeUE(0)  // seq_parameter_set_id
	w.writeBit(0) // entropy_coding_mode_flag
	w.writeBit(0) // bottom_field_pic_order_in_frame_present_flag
	w.writeUE(0)  // num_slice_groups_minus1
	w.writeUE(0)  // num_ref_idx_l0_default_active_minus1
	w.writeUE(0)  // num_ref_idx_l1_default_active_minus1
	w.writeBit(0) // weighted_pred_flag
	w.writeBits(0, 2)
	w.writeSE(0) // pic_init_qp_minus26
	w.writeSE(0) // pic_init_qs_minus26
	w.writeSE(0) // chroma_qp_index_offset
	w.writeBit(1) // deblocking_filter_control_present_flag
	w.writeBit(0)
	w.writeBit(0)

	nalu := NALU{header(3, TypePPS)}
	return append(nalu, escape(w.trailing())...)
}
