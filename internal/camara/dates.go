package camara

import (
	"fmt"
	"strconv"
	"strings"
)

// DateLink is a discovered calendar entry: a session date and the page
// that leads to its document. Date is in DD/MM/YYYY form, as the
// archive publishes it.
type DateLink struct {
	Date    string
	PageURL string
}

// DateKey returns the canonical idempotency key for one session date,
// combining the calendar year with the archive's date string.
func DateKey(year int, date string) string {
	return fmt.Sprintf("%d_%s", year, date)
}

// monthDirs are the per-month directory names used in the download
// tree, in the archive's own language.
var monthDirs = [12]string{
	"01_Janeiro", "02_Fevereiro", "03_Março", "04_Abril",
	"05_Maio", "06_Junho", "07_Julho", "08_Agosto",
	"09_Setembro", "10_Outubro", "11_Novembro", "12_Dezembro",
}

var monthNames = [12]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// MonthDir returns the directory name for a month (1-12), e.g. "03_Março".
func MonthDir(month int) string {
	return monthDirs[month-1]
}

// MonthName returns the human month name for a month (1-12), e.g. "Março".
func MonthName(month int) string {
	return monthNames[month-1]
}

// SplitDate parses a DD/MM/YYYY date string into its components.
func SplitDate(date string) (day, month, year int, err error) {
	parts := strings.Split(date, "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("camara: malformed date %q", date)
	}
	day, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("camara: malformed date %q: %w", date, err)
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("camara: malformed date %q: %w", date, err)
	}
	year, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("camara: malformed date %q: %w", date, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, 0, fmt.Errorf("camara: month out of range in %q", date)
	}
	return day, month, year, nil
}
