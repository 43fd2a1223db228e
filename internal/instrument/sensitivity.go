package instrument

import "fmt"

// sensTable is the standard lock-in sensitivity ladder in volts, index 0
// being 2 nV full scale. Lock-ins are programmed with the index, not the
// voltage.
var sensTable = []float64{
	2e-9, 5e-9, 1e-8, 2e-8, 5e-8, 1e-7, 2e-7, 5e-7,
	1e-6, 2e-6, 5e-6, 1e-5, 2e-5, 5e-5, 1e-4, 2e-4,
	5e-4, 1e-3, 2e-3, 5e-3, 1e-2, 2e-2, 5e-2, 1e-1,
	2e-1, 5e-1, 1,
}

// SensitivityIndex converts a desired full-scale voltage range, given in
// millivolts, to the lock-in sensitivity index that covers it: the smallest
// table entry greater than or equal to the requested range.
func SensitivityIndex(rangeMillivolts float64) (int, error) {
	v := rangeMillivolts / 1000
	if v <= 0 || v > sensTable[len(sensTable)-1] {
		return 0, fmt.Errorf("sensitivity range %g mV outside table (2 nV .. 1 V)", rangeMillivolts)
	}
	for i, s := range sensTable {
		if v <= s {
			return i, nil
		}
	}
	return len(sensTable) - 1, nil
}
