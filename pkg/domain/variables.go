package domain

import (
	"fmt"
	"sort"
)

type VarKey string
type VarGroup string

const (
	GroupEmployee VarGroup = "employee"
	GroupCompany  VarGroup = "company"
	GroupDates    VarGroup = "dates"
	GroupOther    VarGroup = "other"
)

const (
	VarEmployeeName          VarKey = "employee.name"
	VarEmployeeCPF           VarKey = "employee.cpf"
	VarEmployeeRG            VarKey = "employee.rg"
	VarEmployeeBirthDate     VarKey = "employee.birth_date"
	VarEmployeeEmail         VarKey = "employee.email"
	VarEmployeePhone         VarKey = "employee.phone"
	VarEmployeePosition      VarKey = "employee.position"
	VarEmployeeDepartment    VarKey = "employee.department"
	VarEmployeeSalary        VarKey = "employee.salary"
	VarEmployeeAdmissionDate VarKey = "employee.admission_date"
	VarEmployeeAddress       VarKey = "employee.address"

	VarCompanyName                VarKey = "company.name"
	VarCompanyTradeName           VarKey = "company.trade_name"
	VarCompanyCNPJ                VarKey = "company.cnpj"
	VarCompanyAddress             VarKey = "company.address"
	VarCompanyCity                VarKey = "company.city"
	VarCompanyState               VarKey = "company.state"
	VarCompanyLegalRepresentative VarKey = "company.legal_representative"

	VarDatesToday       VarKey = "dates.today"
	VarDatesTodayLong   VarKey = "dates.today_long"
	VarDatesCurrentYear VarKey = "dates.current_year"
	VarDatesAdmission   VarKey = "dates.admission"

	VarOtherCityAndDate VarKey = "other.city_and_date"
	VarOtherFirstName   VarKey = "other.employee_first_name"
)

type VariableDefinition struct {
	Key         VarKey
	Group       VarGroup
	Description string
}

var catalog = []VariableDefinition{
	{Key: VarEmployeeName, Group: GroupEmployee, Description: "Nome completo do colaborador"},
	{Key: VarEmployeeCPF, Group: GroupEmployee, Description: "CPF formatado"},
	{Key: VarEmployeeRG, Group: GroupEmployee, Description: "RG"},
	{Key: VarEmployeeBirthDate, Group: GroupEmployee, Description: "Data de nascimento (DD/MM/AAAA)"},
	{Key: VarEmployeeEmail, Group: GroupEmployee, Description: "E-mail"},
	{Key: VarEmployeePhone, Group: GroupEmployee, Description: "Telefone"},
	{Key: VarEmployeePosition, Group: GroupEmployee, Description: "Cargo"},
	{Key: VarEmployeeDepartment, Group: GroupEmployee, Description: "Departamento"},
	{Key: VarEmployeeSalary, Group: GroupEmployee, Description: "Salário (R$)"},
	{Key: VarEmployeeAdmissionDate, Group: GroupEmployee, Description: "Data de admissão (DD/MM/AAAA)"},
	{Key: VarEmployeeAddress, Group: GroupEmployee, Description: "Endereço"},

	{Key: VarCompanyName, Group: GroupCompany, Description: "Razão social"},
	{Key: VarCompanyTradeName, Group: GroupCompany, Description: "Nome fantasia"},
	{Key: VarCompanyCNPJ, Group: GroupCompany, Description: "CNPJ formatado"},
	{Key: VarCompanyAddress, Group: GroupCompany, Description: "Endereço da empresa"},
	{Key: VarCompanyCity, Group: GroupCompany, Description: "Cidade"},
	{Key: VarCompanyState, Group: GroupCompany, Description: "UF"},
	{Key: VarCompanyLegalRepresentative, Group: GroupCompany, Description: "Representante legal"},

	{Key: VarDatesToday, Group: GroupDates, Description: "Data atual (DD/MM/AAAA)"},
	{Key: VarDatesTodayLong, Group: GroupDates, Description: "Data atual por extenso"},
	{Key: VarDatesCurrentYear, Group: GroupDates, Description: "Ano atual"},
	{Key: VarDatesAdmission, Group: GroupDates, Description: "Data de admissão por extenso"},

	{Key: VarOtherCityAndDate, Group: GroupOther, Description: "Cidade e data por extenso"},
	{Key: VarOtherFirstName, Group: GroupOther, Description: "Primeiro nome do colaborador"},
}

var catalogIndex = func() map[VarKey]int {
	out := make(map[VarKey]int, len(catalog))
	for i, d := range catalog {
		out[d.Key] = i
	}
	return out
}()

// Catalog returns every variable the resolver can produce, in declaration order.
func Catalog() []VariableDefinition {
	return append([]VariableDefinition(nil), catalog...)
}

// CatalogByGroup is the grouped view used by template editors.
func CatalogByGroup() map[VarGroup][]VariableDefinition {
	out := map[VarGroup][]VariableDefinition{}
	for _, d := range catalog {
		out[d.Group] = append(out[d.Group], d)
	}
	return out
}

func IsKnownVar(key VarKey) bool {
	_, ok := catalogIndex[key]
	return ok
}

type VarValidationError struct {
	Key    VarKey
	Reason string
}

func (e *VarValidationError) Error() string {
	return fmt.Sprintf("variable %q invalid: %s", e.Key, e.Reason)
}

// VariableMap holds one value per catalog key. The zero value is not usable;
// build it with NewVariableMap.
type VariableMap struct {
	values []string
}

func NewVariableMap() VariableMap {
	return VariableMap{values: make([]string, len(catalog))}
}

func (m VariableMap) Set(key VarKey, value string) error {
	i, ok := catalogIndex[key]
	if !ok {
		return &VarValidationError{Key: key, Reason: "unknown variable"}
	}
	m.values[i] = value
	return nil
}

// Lookup reports the value for key and whether key belongs to the catalog.
func (m VariableMap) Lookup(key VarKey) (string, bool) {
	i, ok := catalogIndex[key]
	if !ok {
		return "", false
	}
	if i >= len(m.values) {
		return "", true
	}
	return m.values[i], true
}

// MustGet panics on keys outside the catalog.
func (m VariableMap) MustGet(key VarKey) string {
	v, ok := m.Lookup(key)
	if !ok {
		panic(fmt.Sprintf("domain: unknown variable %q", key))
	}
	return v
}

// Entries returns key/value pairs in catalog order.
func (m VariableMap) Entries() []VariableEntry {
	out := make([]VariableEntry, 0, len(catalog))
	for i, d := range catalog {
		v := ""
		if i < len(m.values) {
			v = m.values[i]
		}
		out = append(out, VariableEntry{Key: d.Key, Group: d.Group, Value: v})
	}
	return out
}

type VariableEntry struct {
	Key   VarKey   `json:"key"`
	Group VarGroup `json:"group"`
	Value string   `json:"value"`
}

// Missing lists catalog keys that resolved to an empty value, sorted.
func (m VariableMap) Missing() []VarKey {
	var out []VarKey
	for _, e := range m.Entries() {
		if e.Value == "" {
			out = append(out, e.Key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
