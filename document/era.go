package document

import (
	"fmt"

	"consultation-desk/models"
)

// ToJapaneseEra renders a YYYY-MM-DD date in the form used on intake sheets.
// The era switch is by calendar year only: 2019 is still printed as 平成.
func ToJapaneseEra(date string) string {
	if date == "" {
		return ""
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return date
	}

	year, month, day := d.Year(), int(d.Month()), d.Day()
	switch {
	case year > 2019:
		return fmt.Sprintf("令和%d年%d月%d日", year-2018, month, day)
	case year > 1989:
		return fmt.Sprintf("平成%d年%d月%d日", year-1988, month, day)
	default:
		return fmt.Sprintf("%d年%d月%d日", year, month, day)
	}
}
