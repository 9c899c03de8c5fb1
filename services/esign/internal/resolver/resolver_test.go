package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

type fakeSource struct {
	employees map[string]domain.Employee
	company   domain.Company
	err       error
}

func (f *fakeSource) GetEmployee(_ context.Context, id string) (domain.Employee, error) {
	e, ok := f.employees[id]
	if !ok {
		return domain.Employee{}, domain.ErrEmployeeNotFound
	}
	return e, nil
}

func (f *fakeSource) GetCompany(context.Context) (domain.Company, error) {
	return f.company, f.err
}

func fixedNow() time.Time { return time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC) }

func TestResolveFillsEveryGroup(t *testing.T) {
	src := &fakeSource{
		employees: map[string]domain.Employee{"emp_1": {
			ID: "emp_1", Name: "Ana Silva", CPF: "52998224725", BirthDate: "1990-05-17",
			Position: "Analista", Salary: 3500, AdmissionDate: "2024-02-01",
		}},
		company: domain.Company{Name: "Acme Ltda", CNPJ: "11222333000181", City: "São Paulo"},
	}
	r := New(src, time.UTC, fixedNow)
	m, err := r.Resolve(context.Background(), "emp_1")
	require.NoError(t, err)

	assert.Equal(t, "Ana Silva", m.MustGet(domain.VarEmployeeName))
	assert.Equal(t, "529.982.247-25", m.MustGet(domain.VarEmployeeCPF))
	assert.Equal(t, "17/05/1990", m.MustGet(domain.VarEmployeeBirthDate))
	assert.Equal(t, "R$ 3.500,00", m.MustGet(domain.VarEmployeeSalary))
	assert.Equal(t, "11.222.333/0001-81", m.MustGet(domain.VarCompanyCNPJ))
	assert.Equal(t, "18/10/2026", m.MustGet(domain.VarDatesToday))
	assert.Equal(t, "18 de outubro de 2026", m.MustGet(domain.VarDatesTodayLong))
	assert.Equal(t, "1 de fevereiro de 2024", m.MustGet(domain.VarDatesAdmission))
	assert.Equal(t, "São Paulo, 18 de outubro de 2026", m.MustGet(domain.VarOtherCityAndDate))
	assert.Equal(t, "Ana", m.MustGet(domain.VarOtherFirstName))
}

func TestResolvePartialDataRendersEmpty(t *testing.T) {
	src := &fakeSource{employees: map[string]domain.Employee{"emp_2": {ID: "emp_2", Name: "Bruno"}}}
	m, err := New(src, time.UTC, fixedNow).Resolve(context.Background(), "emp_2")
	require.NoError(t, err)
	assert.Equal(t, "", m.MustGet(domain.VarEmployeeCPF))
	assert.Equal(t, "", m.MustGet(domain.VarCompanyName))
	assert.Equal(t, "", m.MustGet(domain.VarEmployeeSalary))
	assert.Equal(t, "18 de outubro de 2026", m.MustGet(domain.VarOtherCityAndDate))
}

func TestResolveUnknownEmployee(t *testing.T) {
	_, err := New(&fakeSource{}, time.UTC, fixedNow).Resolve(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrEmployeeNotFound))
}

func TestResolveUsesConfiguredZone(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	late := func() time.Time { return time.Date(2026, 10, 19, 1, 30, 0, 0, time.UTC) }
	src := &fakeSource{employees: map[string]domain.Employee{"emp_1": {ID: "emp_1"}}}
	m, err := New(src, loc, late).Resolve(context.Background(), "emp_1")
	require.NoError(t, err)
	assert.Equal(t, "18/10/2026", m.MustGet(domain.VarDatesToday))
}

func TestResolveNormalizesToNFC(t *testing.T) {
	decomposed := "Jose\u0301"
	src := &fakeSource{employees: map[string]domain.Employee{"emp_1": {ID: "emp_1", Name: decomposed}}}
	m, err := New(src, time.UTC, fixedNow).Resolve(context.Background(), "emp_1")
	require.NoError(t, err)
	assert.Equal(t, "Jos\u00e9", m.MustGet(domain.VarEmployeeName))
}
