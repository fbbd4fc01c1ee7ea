package onnx

import (
	"fmt"
	"math"
	"strings"
)

type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
)

// Tensor is a dense, row-major value exchanged with a GraphRunner. Its data
// is copied on the way in and out, so callers never alias runtime memory.
type Tensor struct {
	dtype TensorDType
	shape []int64
	data  any
}

func NewTensor[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	if err := validateShapeAgainstData(shape, len(data)); err != nil {
		return nil, err
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}

	var zero T
	switch any(zero).(type) {
	case float32:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}

		t.dtype, t.data = DTypeFloat32, out
	case int64:
		out := make([]int64, len(data))
		for i, v := range data {
			out[i] = int64(v)
		}

		t.dtype, t.data = DTypeInt64, out
	default:
		return nil, fmt.Errorf("unsupported tensor data type %T", zero)
	}

	return t, nil
}

// NewZeroTensor builds a zero-filled tensor from a manifest node description.
// Symbolic dimensions resolve to 1.
func NewZeroTensor(dtype string, shape []any) (*Tensor, error) {
	canonical, err := canonicalDType(dtype)
	if err != nil {
		return nil, err
	}

	resolved, err := resolveShape(shape)
	if err != nil {
		return nil, err
	}

	count, err := elementCount(resolved)
	if err != nil {
		return nil, err
	}

	if canonical == DTypeInt64 {
		return NewTensor(make([]int64, count), resolved)
	}

	return NewTensor(make([]float32, count), resolved)
}

func (t *Tensor) DType() TensorDType { return t.dtype }

func (t *Tensor) Shape() []int64 { return append([]int64(nil), t.shape...) }

func (t *Tensor) Data() any {
	switch v := t.data.(type) {
	case []float32:
		return append([]float32(nil), v...)
	case []int64:
		return append([]int64(nil), v...)
	default:
		return nil
	}
}

// Float32s returns a copy of the tensor's float32 data.
func (t *Tensor) Float32s() ([]float32, error) { return extract[float32](t, DTypeFloat32) }

// Int64s returns a copy of the tensor's int64 data.
func (t *Tensor) Int64s() ([]int64, error) { return extract[int64](t, DTypeInt64) }

func extract[T float32 | int64](t *Tensor, want TensorDType) ([]T, error) {
	if t == nil {
		return nil, fmt.Errorf("expected %s tensor, got nil", want)
	}

	if t.dtype != want {
		return nil, fmt.Errorf("expected %s tensor, got %s", want, t.dtype)
	}

	data, ok := t.data.([]T)
	if !ok {
		return nil, fmt.Errorf("%s tensor has unexpected backing type %T", want, t.data)
	}

	return append([]T(nil), data...), nil
}

func canonicalDType(raw string) (TensorDType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.TrimPrefix(normalized, "tensor(")
	normalized = strings.TrimSuffix(normalized, ")")

	switch normalized {
	case "float", "float32":
		return DTypeFloat32, nil
	case "int64", "long":
		return DTypeInt64, nil
	default:
		return "", fmt.Errorf("unsupported tensor dtype %q", raw)
	}
}

func resolveShape(shape []any) ([]int64, error) {
	out := make([]int64, len(shape))

	for i, dim := range shape {
		switch v := dim.(type) {
		case float64:
			if v < 1 || v != math.Trunc(v) {
				return nil, fmt.Errorf("shape[%d]=%v is not a positive integer", i, v)
			}

			out[i] = int64(v)
		case int:
			if v < 1 {
				return nil, fmt.Errorf("shape[%d]=%d is not positive", i, v)
			}

			out[i] = int64(v)
		case int64:
			if v < 1 {
				return nil, fmt.Errorf("shape[%d]=%d is not positive", i, v)
			}

			out[i] = v
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("shape[%d] has empty symbolic dimension", i)
			}

			out[i] = 1
		default:
			return nil, fmt.Errorf("shape[%d] has unsupported type %T", i, dim)
		}
	}

	return out, nil
}

func validateShapeAgainstData(shape []int64, dataLen int) error {
	count, err := elementCount(shape)
	if err != nil {
		return err
	}

	if count != dataLen {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, count, dataLen)
	}

	return nil
}

func elementCount(shape []int64) (int, error) {
	count := int64(1)

	for i, dim := range shape {
		if dim < 1 {
			return 0, fmt.Errorf("shape[%d]=%d is not positive", i, dim)
		}

		if count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		count *= dim
	}

	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}

	return int(count), nil
}
