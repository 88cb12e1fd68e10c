package terrain

// NumIndexesForBatchSize returns the strip length for a batch of B x B
// vertices: each of the B-1 rows takes 2B indices plus one turn, and the
// four skirt sides take 2(B-1) each plus two to close the strip.
func NumIndexesForBatchSize(batchSize int) int {
	mainPerRow := batchSize*2 + 1
	rows := batchSize - 1
	skirt := (batchSize-1)*2*4 + 2
	return mainPerRow*rows + skirt
}

// PopulateIndexBuffer fills dst with a single triangle strip over a batch
// sampled from a vertex buffer of vdSize vertices per edge.
//
// Rows are walked upward, alternating direction so the winding stays
// anticlockwise, with a repeated index at each turn:
//
//	6---7---8
//	| \ | \ |
//	3---4---5
//	| / | / |
//	0---1---2
//
// gives 2,5,1,4,0,3,3 then 3,6,4,7,5,8,8. The skirts follow anticlockwise
// around the edge: top, left, bottom, right.
func PopulateIndexBuffer(dst []uint16, batchSize, vdSize, inc, xoff, yoff, numSkirt, skirtSkip int) []uint16 {
	dst = dst[:0]
	rowSize := vdSize * inc
	cur := (batchSize-1)*inc + yoff*vdSize + xoff

	rightToLeft := true
	for r := 0; r < batchSize-1; r++ {
		for c := 0; c < batchSize; c++ {
			dst = append(dst, uint16(cur), uint16(cur+rowSize))
			// keep the border vertex for the next row
			if c+1 < batchSize {
				if rightToLeft {
					cur -= inc
				} else {
					cur += inc
				}
			}
		}
		rightToLeft = !rightToLeft
		cur += rowSize
		dst = append(dst, uint16(cur))
	}

	for s := 0; s < 4; s++ {
		var edgeInc, skirtInc int
		switch s {
		case 0: // top
			edgeInc, skirtInc = -inc, -inc
		case 1: // left
			edgeInc, skirtInc = -rowSize, -inc
		case 2: // bottom
			edgeInc, skirtInc = inc, inc
		case 3: // right
			edgeInc, skirtInc = rowSize, inc
		}
		skirt := CalcSkirtVertexIndex(cur, vdSize, s%2 != 0, numSkirt, skirtSkip)
		n := batchSize - 1
		if s == 3 {
			// closes the strip
			n++
		}
		for c := 0; c < n; c++ {
			dst = append(dst, uint16(cur), uint16(skirt))
			cur += edgeInc
			skirt += skirtInc
		}
	}
	return dst
}

// CalcSkirtVertexIndex returns the skirt copy of interior vertex mainIndex.
// Rows hold the horizontal skirts, columns the vertical ones.
func CalcSkirtVertexIndex(mainIndex, vdSize int, isCol bool, numSkirt, skirtSkip int) int {
	row := mainIndex / vdSize
	col := mainIndex % vdSize
	base := vdSize * vdSize
	if isCol {
		return base + numSkirt*vdSize + vdSize*(col/skirtSkip) + row
	}
	return base + vdSize*(row/skirtSkip) + col
}
