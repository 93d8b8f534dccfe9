package models

// WordEntry is a single catalog word as the learner sees it
type WordEntry struct {
	Text              string   `json:"en" yaml:"en" validate:"required"`
	Meaning           string   `json:"zh" yaml:"zh" validate:"required"`
	PronunciationHint string   `json:"phonetic,omitempty" yaml:"phonetic,omitempty"`
	DisplayBlocks     []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// Unit is an ordered group of words within a level. Order defines both the
// teaching order and the cumulative reinforcement order.
type Unit struct {
	LevelID string      `json:"level" yaml:"level" validate:"required"`
	UnitID  string      `json:"unit" yaml:"unit" validate:"required"`
	Words   []WordEntry `json:"words" yaml:"words" validate:"required,min=1,dive"`
}

// Len returns the number of words in the unit
func (u Unit) Len() int {
	return len(u.Words)
}

// UnitSummary is a unit as listed on the unit picker
type UnitSummary struct {
	LevelID   string `json:"level"`
	UnitID    string `json:"unit"`
	WordCount int    `json:"wordCount"`
	Finished  bool   `json:"finished"`
}
