package linker

// computeLayout recomputes instruction addresses after a re-encoding pass
// changed one or more sizes, preserving whatever gaps the previous layout
// had (a ".ORG" jump, or padding left by an earlier iteration) instead of
// collapsing everything back to back.
//
// The first entry keeps its previous address unconditionally — it anchors
// the rest of the object, the same way original_source's linker.py treats
// index 0 as a fixed point before walking the remainder of the list.
// Every later entry either continues immediately after the previous new
// address/size, or — if its old address was further from the previous old
// entry than contiguous placement would put it — carries that same gap
// forward onto the new layout.
//
// Ported from original_source/src/linker.py's second, simplified pass
// through _optimize_instruction_sizes (the function's own comment calls the
// first attempt "too complicated" and replaces it with this one).
func computeLayout(prevAddrs, prevSizes, newSizes []uint32) []uint32 {
	n := len(prevAddrs)
	newAddrs := make([]uint32, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			newAddrs[i] = prevAddrs[i]
			continue
		}
		expectedOld := prevAddrs[i-1] + prevSizes[i-1]
		expectedNew := newAddrs[i-1] + newSizes[i-1]
		if prevAddrs[i] > expectedOld {
			newAddrs[i] = expectedNew + (prevAddrs[i] - expectedOld)
		} else {
			newAddrs[i] = expectedNew
		}
	}
	return newAddrs
}
