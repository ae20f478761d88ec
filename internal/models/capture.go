package models

// CaptureResult summarizes one interval capture for a race
type CaptureResult struct {
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
	Unmatched  int `json:"unmatched"`
}

// IsDuplicate reports whether every captured row already existed
func (c CaptureResult) IsDuplicate() bool {
	return c.Stored == 0 && c.Duplicates > 0
}
