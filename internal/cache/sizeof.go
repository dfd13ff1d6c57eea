package cache

import (
	"encoding/json"
)

// DefaultSizeEstimate is charged for values whose size cannot be estimated
const DefaultSizeEstimate = 1024

// Sizer lets a value report its own approximate memory footprint in bytes
type Sizer interface {
	ApproxSize() int64
}

// approxSize estimates the memory held by v. It never fails: anything that
// cannot be measured is charged DefaultSizeEstimate.
func approxSize(v any) (size int64) {
	defer func() {
		if recover() != nil {
			size = DefaultSizeEstimate
		}
	}()

	switch x := v.(type) {
	case nil:
		return 8
	case Sizer:
		return x.ApproxSize()
	case string:
		return int64(len(x)) * 2
	case []byte:
		return int64(len(x))
	case bool:
		return 4
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64:
		return 8
	case []float32:
		return int64(len(x)) * 4
	}

	data, err := json.Marshal(v)
	if err != nil {
		return DefaultSizeEstimate
	}
	return int64(len(data)) * 2
}
