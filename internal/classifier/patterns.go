package classifier

import (
	"regexp"
	"strings"
	"time"

	"goprofile/adapters/datareadiness/coercer"
)

// datePattern pairs a shape regex with the layout used to validate ranges
type datePattern struct {
	re     *regexp.Regexp
	layout string
}

var datePatterns = []datePattern{
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "2006-01-02"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`), time.RFC3339},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`), "2006-01-02T15:04:05"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`), "2006-01-02 15:04:05"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`), "2006-01-02 15:04"},
	{regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`), "2006/01/02"},
	{regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`), "1/2/2006"},
	{regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4} \d{1,2}:\d{2}(:\d{2})?$`), ""},
}

// compactDate is only tried when the column name suggests a date
var compactDate = datePattern{regexp.MustCompile(`^\d{8}$`), "20060102"}

var (
	emailPattern   = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	urlPattern     = regexp.MustCompile(`^(?i)(https?://|ftp://|www\.)[^\s/$.?#][^\s]*$`)
	addressPattern = regexp.MustCompile(`^(?i)\d+[A-Za-z]?\s+([A-Za-z0-9.'\-]+\s+)+(street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl|terrace|parkway|pkwy|highway|hwy)\.?(\s*,.*)?$`)
	currencyMarker = regexp.MustCompile(`^\(?-?\s*([$€£¥]|(USD|EUR|GBP|JPY)\s?)|([$€£¥]|\s?(USD|EUR|GBP|JPY))\s*\)?$`)
)

// isDate validates shape and then calendar ranges by parsing with the layout
func isDate(s string, allowCompact bool) bool {
	for _, p := range datePatterns {
		if !p.re.MatchString(s) {
			continue
		}
		if p.layout == "" {
			datePart := strings.Fields(s)[0]
			_, err := time.Parse("1/2/2006", datePart)
			return err == nil
		}
		_, err := time.Parse(p.layout, s)
		return err == nil
	}
	if allowCompact && compactDate.re.MatchString(s) {
		_, err := time.Parse(compactDate.layout, s)
		return err == nil
	}
	return false
}

func isEmail(s string) bool { return emailPattern.MatchString(s) }

func isURL(s string) bool { return urlPattern.MatchString(s) }

func isStreetAddress(s string) bool { return addressPattern.MatchString(s) }

// isCurrency requires a currency symbol or code next to a parseable amount
func isCurrency(s string) bool {
	if !currencyMarker.MatchString(s) {
		return false
	}
	_, _, ok := coercer.ParseLenientNumber(s)
	return ok
}

// isPercentage requires a trailing percent sign on a parseable number
func isPercentage(s string) bool {
	if !strings.HasSuffix(strings.TrimSpace(s), "%") {
		return false
	}
	_, _, ok := coercer.ParseLenientNumber(s)
	return ok
}
