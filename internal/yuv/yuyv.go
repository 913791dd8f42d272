package yuv

// YUYVSize returns the byte size of a packed YUYV (YUY2) frame.
func YUYVSize(width, height int) int {
	return 2 * width * height
}

// YUYVToI420 converts a packed 4:2:2 YUYV frame into I420. Chroma is taken
// from the even rows.
func YUYVToI420(dst, src []byte, width, height int) (int, error) {
	if err := checkDims(width, height); err != nil {
		return 0, err
	}
	if err := checkLen("source", len(src), YUYVSize(width, height)); err != nil {
		return 0, err
	}
	n := I420Size(width, height)
	if err := checkLen("destination", len(dst), n); err != nil {
		return 0, err
	}

	stride := 2 * width
	for row := 0; row < height; row++ {
		line := src[row*stride : (row+1)*stride]
		y := dst[row*width : (row+1)*width]
		for col := range y {
			y[col] = line[2*col]
		}
	}

	cw, ch := width/2, height/2
	dstU := dst[width*height : width*height+cw*ch]
	dstV := dst[width*height+cw*ch : n]
	for row := 0; row < ch; row++ {
		line := src[2*row*stride:]
		for col := 0; col < cw; col++ {
			dstU[row*cw+col] = line[4*col+1]
			dstV[row*cw+col] = line[4*col+3]
		}
	}
	return n, nil
}
