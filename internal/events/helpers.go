package events

import (
	"encoding/json"
	"fmt"
)

// Helper methods for type-safe data access

// SetSummonsHandledData sets the Data field with SummonsHandledData in a type-safe way.
func (e *Event) SetSummonsHandledData(data SummonsHandledData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert SummonsHandledData to map: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetSummonsHandledData retrieves SummonsHandledData from the Data field in a type-safe way.
func (e *Event) GetSummonsHandledData() (*SummonsHandledData, error) {
	var data SummonsHandledData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SummonsHandledData: %w", err)
	}
	return &data, nil
}

// SetSummonsDeferredData sets the Data field with SummonsDeferredData in a type-safe way.
func (e *Event) SetSummonsDeferredData(data SummonsDeferredData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert SummonsDeferredData to map: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetSummonsDeferredData retrieves SummonsDeferredData from the Data field in a type-safe way.
func (e *Event) GetSummonsDeferredData() (*SummonsDeferredData, error) {
	var data SummonsDeferredData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SummonsDeferredData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}

// SetEventCleanupCompletedData sets the Data field with EventCleanupCompletedData in a type-safe way.
func (e *Event) SetEventCleanupCompletedData(data EventCleanupCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert EventCleanupCompletedData to map: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetEventCleanupCompletedData retrieves EventCleanupCompletedData from the Data field.
func (e *Event) GetEventCleanupCompletedData() (*EventCleanupCompletedData, error) {
	var data EventCleanupCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse EventCleanupCompletedData: %w", err)
	}
	return &data, nil
}

// SetInstanceCleanupCompletedData sets the Data field with InstanceCleanupCompletedData in a type-safe way.
func (e *Event) SetInstanceCleanupCompletedData(data InstanceCleanupCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert InstanceCleanupCompletedData to map: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetInstanceCleanupCompletedData retrieves InstanceCleanupCompletedData from the Data field.
func (e *Event) GetInstanceCleanupCompletedData() (*InstanceCleanupCompletedData, error) {
	var data InstanceCleanupCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse InstanceCleanupCompletedData: %w", err)
	}
	return &data, nil
}
