package hydro

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"floodfactor/internal/types"
)

// CFactorTable maps land-cover class codes to runoff coefficients.
type CFactorTable map[int]float64

// DefaultCFactorTable returns the coefficients for the ESA WorldCover classes.
func DefaultCFactorTable() CFactorTable {
	return CFactorTable{
		10:  0.10, // tree cover
		20:  0.15, // shrubland
		30:  0.20, // grassland
		40:  0.30, // cropland
		50:  0.85, // built-up
		60:  0.40, // bare / sparse vegetation
		70:  0.05, // snow and ice
		80:  0.05, // permanent water
		90:  0.25, // herbaceous wetland
		95:  0.10, // mangroves
		100: 0.20, // moss and lichen
	}
}

// Validate checks every coefficient lies in [0, 1].
func (t CFactorTable) Validate() error {
	if len(t) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidTable, "C-factor table is empty", nil)
	}
	for _, class := range t.Classes() {
		c := t[class]
		if !(c >= 0 && c <= 1) {
			return types.NewAppError(types.ErrCodeValidationInvalidTable,
				fmt.Sprintf("class %d: coefficient %v outside [0, 1]", class, c), nil)
		}
	}
	return nil
}

// Classes returns the class codes in ascending order.
func (t CFactorTable) Classes() []int {
	out := make([]int, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Lookup returns the coefficient for a raw raster value. Values that are not
// whole numbers never match a class.
func (t CFactorTable) Lookup(v float64) (float64, bool) {
	if v != float64(int(v)) {
		return 0, false
	}
	c, ok := t[int(v)]
	return c, ok
}

type cfactorFile struct {
	Classes []cfactorClass `hcl:"class,block"`
}

type cfactorClass struct {
	Code        string  `hcl:"code,label"`
	Coefficient float64 `hcl:"coefficient"`
	Description string  `hcl:"description,optional"`
}

// LoadCFactorTable reads a table from an HCL file of the form
//
//	class "50" {
//	  coefficient = 0.85
//	  description = "built-up"
//	}
//
// Expressions may refer to the built-in table as defaults, keyed by class
// code, e.g. coefficient = defaults["40"] * 1.2.
func LoadCFactorTable(path string) (CFactorTable, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, tableError(path, diags)
	}
	return decodeCFactorBody(path, file)
}

// ParseCFactorTable parses HCL source held in memory. filename is only used
// in diagnostics.
func ParseCFactorTable(src []byte, filename string) (CFactorTable, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, tableError(filename, diags)
	}
	return decodeCFactorBody(filename, file)
}

func decodeCFactorBody(name string, file *hcl.File) (CFactorTable, error) {
	var root cfactorFile
	if diags := gohcl.DecodeBody(file.Body, cfactorEvalContext(), &root); diags.HasErrors() {
		return nil, tableError(name, diags)
	}

	table := make(CFactorTable, len(root.Classes))
	for _, c := range root.Classes {
		code, err := strconv.Atoi(c.Code)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidTable,
				fmt.Sprintf("%s: class label %q is not an integer", name, c.Code), err)
		}
		if _, dup := table[code]; dup {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidTable,
				fmt.Sprintf("%s: class %d declared twice", name, code), nil)
		}
		table[code] = c.Coefficient
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func cfactorEvalContext() *hcl.EvalContext {
	defaults := make(map[string]cty.Value)
	for code, c := range DefaultCFactorTable() {
		defaults[strconv.Itoa(code)] = cty.NumberFloatVal(c)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"defaults": cty.MapVal(defaults),
		},
	}
}

func tableError(name string, diags hcl.Diagnostics) error {
	return types.NewAppError(types.ErrCodeValidationInvalidTable,
		fmt.Sprintf("%s: failed to parse C-factor table", name), diags)
}
