package domain

import (
	"regexp"
	"strings"
	"time"
)

var (
	reISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reBRDate  = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCPF checks length and both check digits. Repeated-digit CPFs are rejected.
func ValidCPF(cpf string) bool {
	d := DigitsOnly(cpf)
	if len(d) != 11 {
		return false
	}
	if strings.Count(d, d[:1]) == 11 {
		return false
	}
	for pos := 9; pos <= 10; pos++ {
		sum := 0
		for i := 0; i < pos; i++ {
			sum += int(d[i]-'0') * (pos + 1 - i)
		}
		check := (sum * 10) % 11
		if check == 10 {
			check = 0
		}
		if check != int(d[pos]-'0') {
			return false
		}
	}
	return true
}

func FormatCPF(cpf string) string {
	d := DigitsOnly(cpf)
	if len(d) != 11 {
		return strings.TrimSpace(cpf)
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}

func FormatCNPJ(cnpj string) string {
	d := DigitsOnly(cnpj)
	if len(d) != 14 {
		return strings.TrimSpace(cnpj)
	}
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
}

// NormalizeBirthDate accepts YYYY-MM-DD or DD/MM/YYYY and returns YYYY-MM-DD.
func NormalizeBirthDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	var layout string
	switch {
	case reISODate.MatchString(s):
		layout = "2006-01-02"
	case reBRDate.MatchString(s):
		layout = "02/01/2006"
	default:
		return "", &VarValidationError{Key: VarEmployeeBirthDate, Reason: "date must be YYYY-MM-DD or DD/MM/YYYY"}
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", &VarValidationError{Key: VarEmployeeBirthDate, Reason: "invalid date"}
	}
	return t.Format("2006-01-02"), nil
}
