package recipe

// Severity is a lint finding's severity (§4.A).
type Severity int

const (
	SeverityWarn Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Finding is one lint error or warning, attributed to a field and a source
// line (§4.A step 7, "rendered report").
type Finding struct {
	Field      string
	Message    string
	LineNumber int
	Severity   Severity
}

// FieldType classifies how a top-level recipe field must be validated.
type FieldType int

const (
	FieldBoolean FieldType = iota
	FieldString
	FieldStringArray
	FieldURL
	FieldURLArray
	FieldBuildAsset
	FieldLicense
	FieldResource
	FieldDescription
	FieldDistroPkg
	FieldXExec
	FieldDisabledReason
)

// FieldSpec describes one entry in the schema registry consulted by the
// linter while streaming top-level recipe keys (§4.A step 2).
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is the full set of known top-level recipe fields. Order here is
// irrelevant to validation (the registry is a lookup table); see
// CanonicalFieldOrder in types.go for re-emission order.
var Schema = []FieldSpec{
	{Name: "_disabled", Type: FieldBoolean, Required: true},
	{Name: "_disabled_reason", Type: FieldDisabledReason, Required: false},
	{Name: "pkg", Type: FieldString, Required: true},
	{Name: "pkg_id", Type: FieldString, Required: false},
	{Name: "pkg_type", Type: FieldString, Required: false},
	{Name: "pkgver", Type: FieldString, Required: false},
	{Name: "version", Type: FieldString, Required: false},
	{Name: "app_id", Type: FieldString, Required: false},
	{Name: "build_util", Type: FieldStringArray, Required: false},
	{Name: "build_asset", Type: FieldBuildAsset, Required: false},
	{Name: "category", Type: FieldStringArray, Required: false},
	{Name: "description", Type: FieldDescription, Required: true},
	{Name: "distro_pkg", Type: FieldDistroPkg, Required: false},
	{Name: "homepage", Type: FieldStringArray, Required: false},
	{Name: "maintainer", Type: FieldStringArray, Required: false},
	{Name: "icon", Type: FieldResource, Required: false},
	{Name: "desktop", Type: FieldResource, Required: false},
	{Name: "license", Type: FieldLicense, Required: false},
	{Name: "note", Type: FieldStringArray, Required: false},
	{Name: "provides", Type: FieldStringArray, Required: false},
	{Name: "repology", Type: FieldStringArray, Required: false},
	{Name: "src_url", Type: FieldURLArray, Required: true},
	{Name: "tag", Type: FieldStringArray, Required: false},
	{Name: "x_exec", Type: FieldXExec, Required: true},
}

// LookupField returns the FieldSpec for name, or ok=false if unknown.
func LookupField(name string) (FieldSpec, bool) {
	for _, f := range Schema {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
