package progress

import (
	"encoding/json"
	"fmt"

	"wordmoment/internal/models"
)

// storedRecord is the on-disk shape of a unit record. Cursor is a pointer so
// that a record without one can be told apart from cursor 0.
type storedRecord struct {
	Cursor   *int `json:"cursor"`
	Finished bool `json:"finished"`
}

// decodeObject parses data as a JSON object. It always returns a usable map;
// ok is false when data was empty or not an object.
func decodeObject(data []byte) (map[string]json.RawMessage, bool) {
	obj := map[string]json.RawMessage{}
	if len(data) == 0 {
		return obj, false
	}
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return map[string]json.RawMessage{}, false
	}
	return obj, true
}

func decodeRecord(data []byte) (models.PersistedProgress, bool) {
	var rec storedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.PersistedProgress{}, false
	}
	if rec.Cursor == nil || *rec.Cursor < 0 {
		return models.PersistedProgress{}, false
	}
	return models.PersistedProgress{Cursor: *rec.Cursor, Finished: rec.Finished}, true
}

// lookup finds the record at levelID/unitID
func lookup(data []byte, levelID, unitID string) (models.PersistedProgress, bool) {
	top, ok := decodeObject(data)
	if !ok {
		return models.PersistedProgress{}, false
	}
	level, ok := decodeObject(top[levelID])
	if !ok {
		return models.PersistedProgress{}, false
	}
	raw, ok := level[unitID]
	if !ok {
		return models.PersistedProgress{}, false
	}
	return decodeRecord(raw)
}

// merge sets the levelID/unitID leaf of data to record. Everything else in the
// blob, including unknown keys inside the unit record, is carried over.
func merge(data []byte, levelID, unitID string, record models.PersistedProgress) ([]byte, error) {
	top, _ := decodeObject(data)
	level, _ := decodeObject(top[levelID])
	leaf, _ := decodeObject(level[unitID])

	cursor, err := json.Marshal(record.Cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cursor: %w", err)
	}
	finished, err := json.Marshal(record.Finished)
	if err != nil {
		return nil, fmt.Errorf("failed to encode finished flag: %w", err)
	}
	leaf["cursor"] = cursor
	leaf["finished"] = finished

	if level[unitID], err = json.Marshal(leaf); err != nil {
		return nil, fmt.Errorf("failed to encode unit record: %w", err)
	}
	if top[levelID], err = json.Marshal(level); err != nil {
		return nil, fmt.Errorf("failed to encode level: %w", err)
	}
	return json.Marshal(top)
}

// records decodes every well-formed unit record in data
func records(data []byte) map[string]map[string]models.PersistedProgress {
	result := make(map[string]map[string]models.PersistedProgress)
	top, _ := decodeObject(data)
	for levelID, levelRaw := range top {
		level, ok := decodeObject(levelRaw)
		if !ok {
			continue
		}
		for unitID, raw := range level {
			rec, ok := decodeRecord(raw)
			if !ok {
				continue
			}
			if result[levelID] == nil {
				result[levelID] = make(map[string]models.PersistedProgress)
			}
			result[levelID][unitID] = rec
		}
	}
	return result
}
