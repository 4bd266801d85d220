package models

// StatusRecord is one monitored entity found on the page, in document order.
//
// IndicatorClass and IndicatorSeries are nil when no trend indicator could
// be located near the entity title. The series is passed through verbatim.
type StatusRecord struct {
	// Label is the trimmed display name of the entity. Never empty.
	Label string `json:"h5"`

	// IndicatorClass is the class attribute of the trend indicator.
	IndicatorClass *string `json:"sparkline_class"`

	// IndicatorSeries is the raw series attribute of the trend indicator.
	IndicatorSeries *string `json:"sparkline_values_raw"`
}

// NewStatusRecord builds a record. Empty-string pointers are kept as-is;
// only a nil pointer means "absent".
func NewStatusRecord(label string, class, series *string) StatusRecord {
	return StatusRecord{
		Label:           label,
		IndicatorClass:  cloneString(class),
		IndicatorSeries: cloneString(series),
	}
}

// HasIndicator reports whether a trend indicator was found for the entity.
func (r StatusRecord) HasIndicator() bool {
	return r.IndicatorClass != nil || r.IndicatorSeries != nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
