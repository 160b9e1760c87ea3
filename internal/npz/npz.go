// Package npz adapts numpy .npz archives to flat float arrays with an
// explicit shape, the form latent codes and latent checkpoints are
// exchanged in.
package npz

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	npyz "github.com/sbinet/npyio/npz"
)

// Array is a dense float array with a numpy shape.
type Array struct {
	Shape []int
	Data  []float64
}

// Len returns the element count implied by the shape.
func (a Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Write stores arrays in an .npz archive, one "<name>.npy" member per array,
// encoded as little-endian float32 with the array's full shape.
func Write(path string, arrays map[string]Array) error {
	names := make([]string, 0, len(arrays))
	for n := range arrays {
		names = append(names, n)
	}
	sort.Strings(names)

	values := make([]interface{}, len(names))
	for i, n := range names {
		v, err := shaped(arrays[n])
		if err != nil {
			return fmt.Errorf("array %s: %w", n, err)
		}
		values[i] = v
	}

	zw, err := npyz.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	for i, n := range names {
		if err := zw.Write(n, values[i]); err != nil {
			zw.Close()
			return fmt.Errorf("failed to write array %s: %w", n, err)
		}
	}
	return zw.Close()
}

// shaped converts a into a nested fixed-size float32 array so the npy
// header carries every dimension, not just the flat length.
func shaped(a Array) (interface{}, error) {
	if len(a.Shape) == 0 {
		return nil, fmt.Errorf("scalar arrays are not supported")
	}
	if a.Len() != len(a.Data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", a.Shape, a.Len(), len(a.Data))
	}
	typ := reflect.TypeOf(float32(0))
	for i := len(a.Shape) - 1; i >= 0; i-- {
		typ = reflect.ArrayOf(a.Shape[i], typ)
	}
	v := reflect.New(typ).Elem()
	fill(v, a.Data)
	return v.Interface(), nil
}

func fill(v reflect.Value, data []float64) {
	if len(data) == 0 {
		return
	}
	if v.Kind() != reflect.Array {
		v.SetFloat(data[0])
		return
	}
	stride := len(data) / v.Len()
	for i := 0; i < v.Len(); i++ {
		fill(v.Index(i), data[i*stride:(i+1)*stride])
	}
}

// Read loads every float32 or float64 array of an .npz archive, keyed by
// member name without the ".npy" suffix.
func Read(path string) (map[string]Array, error) {
	r, err := npyz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	keys := r.Keys()
	out := make(map[string]Array, len(keys))
	for _, key := range keys {
		hdr := r.Header(key)
		if hdr == nil {
			return nil, fmt.Errorf("member %s has no npy header", key)
		}
		if hdr.Descr.Fortran {
			return nil, fmt.Errorf("member %s: fortran-ordered arrays are not supported", key)
		}
		a := Array{Shape: append([]int(nil), hdr.Descr.Shape...)}
		switch hdr.Descr.Type {
		case "<f4":
			var raw []float32
			if err := r.Read(key, &raw); err != nil {
				return nil, fmt.Errorf("failed to read member %s: %w", key, err)
			}
			a.Data = make([]float64, len(raw))
			for i, v := range raw {
				a.Data[i] = float64(v)
			}
		case "<f8":
			if err := r.Read(key, &a.Data); err != nil {
				return nil, fmt.Errorf("failed to read member %s: %w", key, err)
			}
		default:
			return nil, fmt.Errorf("member %s: unsupported dtype %s", key, hdr.Descr.Type)
		}
		if len(a.Data) != a.Len() {
			return nil, fmt.Errorf("member %s: shape %v but %d values", key, a.Shape, len(a.Data))
		}
		out[strings.TrimSuffix(key, ".npy")] = a
	}
	return out, nil
}
