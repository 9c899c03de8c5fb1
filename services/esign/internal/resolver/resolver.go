package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/unicode/norm"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

// Source is the read side of the employee and company-settings stores.
type Source interface {
	GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error)
	GetCompany(ctx context.Context) (domain.Company, error)
}

type Resolver struct {
	src     Source
	loc     *time.Location
	now     func() time.Time
	printer *message.Printer
}

func New(src Source, loc *time.Location, now func() time.Time) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{src: src, loc: loc, now: now, printer: message.NewPrinter(language.BrazilianPortuguese)}
}

// Resolve fills every catalog variable for the employee. Facts that are
// missing upstream resolve to "".
func (r *Resolver) Resolve(ctx context.Context, employeeID string) (domain.VariableMap, error) {
	emp, err := r.src.GetEmployee(ctx, employeeID)
	if err != nil {
		return domain.VariableMap{}, fmt.Errorf("resolve employee %s: %w", employeeID, err)
	}
	company, err := r.src.GetCompany(ctx)
	if err != nil {
		return domain.VariableMap{}, fmt.Errorf("resolve company settings: %w", err)
	}
	today := r.now().In(r.loc)

	vals := map[domain.VarKey]string{
		domain.VarEmployeeName:          emp.Name,
		domain.VarEmployeeCPF:           formatIfPresent(emp.CPF, domain.FormatCPF),
		domain.VarEmployeeRG:            emp.RG,
		domain.VarEmployeeBirthDate:     shortDate(emp.BirthDate),
		domain.VarEmployeeEmail:         emp.Email,
		domain.VarEmployeePhone:         emp.Phone,
		domain.VarEmployeePosition:      emp.Position,
		domain.VarEmployeeDepartment:    emp.Department,
		domain.VarEmployeeSalary:        r.money(emp.Salary),
		domain.VarEmployeeAdmissionDate: shortDate(emp.AdmissionDate),
		domain.VarEmployeeAddress:       emp.Address,

		domain.VarCompanyName:                company.Name,
		domain.VarCompanyTradeName:           company.TradeName,
		domain.VarCompanyCNPJ:                formatIfPresent(company.CNPJ, domain.FormatCNPJ),
		domain.VarCompanyAddress:             company.Address,
		domain.VarCompanyCity:                company.City,
		domain.VarCompanyState:               company.State,
		domain.VarCompanyLegalRepresentative: company.LegalRepresentative,

		domain.VarDatesToday:       today.Format("02/01/2006"),
		domain.VarDatesTodayLong:   LongDate(today),
		domain.VarDatesCurrentYear: strconv.Itoa(today.Year()),
		domain.VarDatesAdmission:   longDateString(emp.AdmissionDate),

		domain.VarOtherFirstName: firstName(emp.Name),
	}
	if city := strings.TrimSpace(company.City); city != "" {
		vals[domain.VarOtherCityAndDate] = city + ", " + LongDate(today)
	} else {
		vals[domain.VarOtherCityAndDate] = LongDate(today)
	}

	out := domain.NewVariableMap()
	for _, def := range domain.Catalog() {
		if err := out.Set(def.Key, norm.NFC.String(strings.TrimSpace(vals[def.Key]))); err != nil {
			return domain.VariableMap{}, err
		}
	}
	return out, nil
}

var monthsPT = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// LongDate formats t as "18 de outubro de 2026".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%d de %s de %d", t.Day(), monthsPT[t.Month()-1], t.Year())
}

func parseISODate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func shortDate(iso string) string {
	t, ok := parseISODate(iso)
	if !ok {
		return ""
	}
	return t.Format("02/01/2006")
}

func longDateString(iso string) string {
	t, ok := parseISODate(iso)
	if !ok {
		return ""
	}
	return LongDate(t)
}

func (r *Resolver) money(v float64) string {
	if v == 0 {
		return ""
	}
	return "R$ " + r.printer.Sprintf("%.2f", v)
}

func formatIfPresent(v string, f func(string) string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return f(v)
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
