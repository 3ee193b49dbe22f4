package models

import "sort"

// FieldGroup names a fixed projection of columns that the field store reads
// and writes as one unit. Groups are the only granularity the service ever
// touches; columns are never joined ad hoc.
type FieldGroup string

const (
	FieldGroupIdentity      FieldGroup = "identity"
	FieldGroupContact       FieldGroup = "contact"
	FieldGroupOccupation    FieldGroup = "occupation"
	FieldGroupTaxID         FieldGroup = "tax_id"
	FieldGroupPassport      FieldGroup = "passport"
	FieldGroupVisa          FieldGroup = "visa"
	FieldGroupUSPresence    FieldGroup = "us_presence"
	FieldGroupTreaty        FieldGroup = "treaty"
	FieldGroupIncome        FieldGroup = "income"
	FieldGroupWithholding   FieldGroup = "withholding"
	FieldGroupDocuments     FieldGroup = "documents"
	FieldGroupDeductions    FieldGroup = "deductions"
	FieldGroupEducation     FieldGroup = "education"
	FieldGroupDependents    FieldGroup = "dependents"
	FieldGroupRefundBanking FieldGroup = "refund_banking"
)

// FieldGroupSchema describes one group: its columns on the individual table
// and, when the group applies to companies, the columns on the company table.
// An empty CompanyColumns slice marks the group individual-only.
type FieldGroupSchema struct {
	Name           FieldGroup
	Description    string
	Columns        []string
	CompanyColumns []string
}

// FieldGroups is the closed registry of retrievable/updatable groups. The
// repository builds SQL exclusively from these projections.
var FieldGroups = map[FieldGroup]FieldGroupSchema{
	FieldGroupIdentity: {
		Name:           FieldGroupIdentity,
		Description:    "Full legal name, date of birth and filing status",
		Columns:        []string{"first_name", "middle_name", "last_name", "birth_date", "filing_status"},
		CompanyColumns: []string{"company_name"},
	},
	FieldGroupContact: {
		Name:           FieldGroupContact,
		Description:    "Current US address, phone and email",
		Columns:        []string{"address1", "address2", "city", "state", "zip", "country", "phone", "email"},
		CompanyColumns: []string{"address1", "address2", "city", "state", "zip", "country", "phone", "email"},
	},
	FieldGroupOccupation: {
		Name:        FieldGroupOccupation,
		Description: "Occupation and source of US income",
		Columns:     []string{"occupation", "source_of_us_income"},
	},
	FieldGroupTaxID: {
		Name:        FieldGroupTaxID,
		Description: "Individual Taxpayer Identification Number",
		Columns:     []string{"itin"},
	},
	FieldGroupPassport: {
		Name:        FieldGroupPassport,
		Description: "Passport number, issuing country and expiry",
		Columns:     []string{"passport_number", "passport_country", "passport_expiry"},
	},
	FieldGroupVisa: {
		Name:        FieldGroupVisa,
		Description: "Visa type and issuing country",
		Columns:     []string{"visa_type", "visa_issue_country"},
	},
	FieldGroupUSPresence: {
		Name:        FieldGroupUSPresence,
		Description: "US entry/exit dates and days of physical presence",
		Columns: []string{
			"first_entry_date_us", "last_exit_date_us",
			"days_in_us_current_year", "days_in_us_prev_year", "days_in_us_prev2_years",
		},
	},
	FieldGroupTreaty: {
		Name:        FieldGroupTreaty,
		Description: "Tax treaty claim details",
		Columns: []string{
			"treaty_claimed", "treaty_country", "treaty_article",
			"treaty_income_type", "treaty_exempt_amount", "resident_of_treaty_country",
		},
	},
	FieldGroupIncome: {
		Name:        FieldGroupIncome,
		Description: "Income amounts by source",
		Columns: []string{
			"w2_wages_amount", "scholarship_1042s_amount", "interest_amount",
			"dividend_amount", "capital_gains_amount", "rental_income_amount",
			"self_employment_eci_amount",
		},
	},
	FieldGroupWithholding: {
		Name:        FieldGroupWithholding,
		Description: "Federal withholding amounts",
		Columns:     []string{"federal_withholding_w2", "federal_withholding_1042s", "tax_withheld_1099"},
	},
	FieldGroupDocuments: {
		Name:        FieldGroupDocuments,
		Description: "Which source documents the filer holds",
		Columns:     []string{"has_w2", "has_1042s", "has_1099", "has_k1"},
	},
	FieldGroupDeductions: {
		Name:        FieldGroupDeductions,
		Description: "Itemized deduction amounts",
		Columns:     []string{"itemized_state_local_tax", "itemized_charity", "itemized_casualty_losses"},
	},
	FieldGroupEducation: {
		Name:        FieldGroupEducation,
		Description: "Education expenses and student loan interest",
		Columns:     []string{"education_expenses", "student_loan_interest"},
	},
	FieldGroupDependents: {
		Name:        FieldGroupDependents,
		Description: "Number of dependents",
		Columns:     []string{"dependents_count"},
	},
	FieldGroupRefundBanking: {
		Name:        FieldGroupRefundBanking,
		Description: "Refund method and banking details",
		Columns:     []string{"refund_method", "bank_routing", "bank_account_last4"},
	},
}

// LookupFieldGroup returns the schema for a group name.
func LookupFieldGroup(name string) (FieldGroupSchema, bool) {
	g, ok := FieldGroups[FieldGroup(name)]
	return g, ok
}

// FieldGroupNames returns all registered group names, sorted.
func FieldGroupNames() []string {
	names := make([]string, 0, len(FieldGroups))
	for name := range FieldGroups {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// GroupColumns returns the column projection of a group for a client type.
// The second return is false when the group does not apply to that type.
func (s FieldGroupSchema) GroupColumns(ct ClientType) ([]string, bool) {
	if ct == ClientTypeCompany {
		if len(s.CompanyColumns) == 0 {
			return nil, false
		}
		return s.CompanyColumns, true
	}
	return s.Columns, true
}
