package judge

import (
	"fmt"
	"time"
)

// dateTimeLayout is the contest datetime wire format: UTC, millisecond
// precision, literal Z suffix.
const dateTimeLayout = "2006-01-02T15:04:05.000Z"

// DateTime is a time.Time whose JSON form is the contest wire format.
type DateTime struct {
	time.Time
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.UTC().Format(dateTimeLayout) + `"`), nil
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("datetime must be a JSON string: %s", s)
	}
	t, err := time.Parse(dateTimeLayout, s[1:len(s)-1])
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}
