package domain

import (
	"dario.cat/mergo"
)

// MergeStageData folds newly produced stage data into an existing payload
// snapshot. Stage fields are append-only: keys already present are
// overridden by the newer write, slices are appended.
func MergeStageData(current, update map[string]interface{}) (map[string]interface{}, error) {
	if len(update) == 0 {
		return current, nil
	}
	if current == nil {
		current = make(map[string]interface{}, len(update))
	}

	if err := mergo.Merge(&current, update,
		mergo.WithOverride,
		mergo.WithAppendSlice); err != nil {
		return nil, NewInternalError("failed to merge stage data", err)
	}
	return current, nil
}
