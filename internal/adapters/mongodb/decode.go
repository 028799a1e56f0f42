package mongodb

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// decodeRawSlice appends every raw document to out, which must be a
// pointer to a slice of the concrete element type.
func decodeRawSlice(batch []bson.Raw, out any) error {
	outVal := reflect.ValueOf(out)
	if outVal.Kind() != reflect.Ptr || outVal.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("search target must be a pointer to a slice, got %T", out)
	}
	sliceVal := outVal.Elem()
	elemType := sliceVal.Type().Elem()

	for _, raw := range batch {
		target := reflect.New(elemType)
		if err := bson.Unmarshal(raw, target.Interface()); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}
		sliceVal = reflect.Append(sliceVal, target.Elem())
	}
	outVal.Elem().Set(sliceVal)
	return nil
}
