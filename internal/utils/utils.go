package utils

import (
	"fmt"
	"reflect"
)

// ItemInSlice reports whether slice holds an element equal to item.
// slice must be a slice or an array.
func ItemInSlice(item interface{}, slice interface{}) (bool, error) {
	v := reflect.ValueOf(slice)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return false, fmt.Errorf("expected a slice, got %T", slice)
	}
	for i := 0; i < v.Len(); i++ {
		if reflect.DeepEqual(v.Index(i).Interface(), item) {
			return true, nil
		}
	}
	return false, nil
}
