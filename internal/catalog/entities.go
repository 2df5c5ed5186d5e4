package catalog

import "regexp"

var (
	currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)
	countryCode  = regexp.MustCompile(`^[A-Z]{2}$`)
	shortCode    = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,31}$`)
)

// Currencies are ISO 4217 currencies with display settings.
var Currencies = Spec{
	Name:  "currencies",
	Label: "Currencies",
	Fields: []FieldSpec{
		{Name: "code", Type: FieldText, Required: true, Normalizer: upper, Pattern: currencyCode, Sample: "EUR",
			Description: "ISO 4217 code"},
		{Name: "name", Type: FieldText, Required: true, Sample: "Euro"},
		{Name: "symbol", Type: FieldText, Sample: "€"},
		{Name: "decimal_places", Type: FieldNumeric, Sample: "2"},
		{Name: "active", Type: FieldBool, Sample: "true"},
	},
	KeyFields: []string{"code"},
	Samples: [][]string{
		{"EUR", "Euro", "€", "2", "true"},
		{"JPY", "Japanese Yen", "¥", "0", "true"},
	},
}

// TaxRates are rates per jurisdiction and tax type, keyed by the date they
// take effect.
var TaxRates = Spec{
	Name:  "tax_rates",
	Label: "Tax Rates",
	Fields: []FieldSpec{
		{Name: "jurisdiction", Type: FieldText, Required: true, Normalizer: jurisdiction, Sample: "CA"},
		{Name: "tax_type", Type: FieldEnum, Required: true, EnumValues: []string{"sales", "use", "vat", "gst"}, Sample: "sales"},
		{Name: "rate", Type: FieldNumeric, Required: true, Sample: "7.25", Description: "percent"},
		{Name: "effective_date", Type: FieldDate, Required: true, Sample: "2026-01-01"},
		{Name: "description", Type: FieldText},
	},
	KeyFields: []string{"jurisdiction", "tax_type", "effective_date"},
}

// Locations are offices and warehouses. US state and Canadian province
// names are stored as their postal code.
var Locations = Spec{
	Name:  "locations",
	Label: "Locations",
	Fields: []FieldSpec{
		{Name: "code", Type: FieldText, Required: true, Normalizer: upper, Pattern: shortCode, Sample: "SFO-1"},
		{Name: "name", Type: FieldText, Required: true, Sample: "San Francisco HQ"},
		{Name: "type", Type: FieldEnum, EnumValues: []string{"office", "warehouse", "store", "remote"}, Sample: "office"},
		{Name: "country", Type: FieldText, Normalizer: upper, Pattern: countryCode, Sample: "US"},
		{Name: "state", Type: FieldText, Normalizer: NormalizeRegion, Sample: "CA"},
		{Name: "city", Type: FieldText, Sample: "San Francisco"},
		{Name: "opened_on", Type: FieldDate, Sample: "2019-04-01"},
	},
	KeyFields: []string{"code"},
}

// Departments form a cost-center tree through parent_code.
var Departments = Spec{
	Name:  "departments",
	Label: "Departments",
	Fields: []FieldSpec{
		{Name: "code", Type: FieldText, Required: true, Normalizer: upper, Pattern: shortCode, Sample: "ENG"},
		{Name: "name", Type: FieldText, Required: true, Sample: "Engineering"},
		{Name: "parent_code", Type: FieldText, Normalizer: upper, Pattern: shortCode, Sample: "RND"},
		{Name: "cost_center", Type: FieldText, Sample: "4100"},
		{Name: "budget", Type: FieldNumeric, Sample: "1250000.00"},
		{Name: "active", Type: FieldBool, Sample: "yes"},
	},
	KeyFields: []string{"code"},
}

// Specs lists the built-in catalog entities.
var Specs = []Spec{Currencies, TaxRates, Locations, Departments}
