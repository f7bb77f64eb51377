package ndarray

// downTypeCandidates is the ordered list tried by DownType.
var downTypeCandidates = []DType{Int8, Uint8, Int16, Uint16, Float16}

// DownType retags a in place with the first candidate element type (int8,
// uint8, int16, uint16, float16) that holds every value exactly and returns
// it. When none does a is left unchanged. No values are copied or altered,
// so casting the result back to the original dtype reproduces the input.
func DownType(a *Array) *Array {
	if a == nil {
		return nil
	}
	for _, dt := range downTypeCandidates {
		if holdsAll(dt, a.data) {
			a.dtype = dt
			return a
		}
	}
	return a
}

func holdsAll(dt DType, values []float64) bool {
	for _, v := range values {
		if !dt.Holds(v) {
			return false
		}
	}
	return true
}
