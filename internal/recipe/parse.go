package recipe

import (
	"gopkg.in/yaml.v3"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// ParseLoose decodes data directly into a Recipe via the tagged-union
// yaml.Unmarshaler implementations, without running the full lint pass
// (line-numbered findings, shellcheck, pkgver resolution). Used by callers
// like the metadata generator (§4.F step 1) that only need the parsed
// shape and tolerate malformed recipes as warnings, not failures.
func ParseLoose(data []byte) (*Recipe, error) {
	var rec Recipe
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, xerrs.Wrap(xerrs.KindValidation, "parsing recipe", err)
	}
	if rec.Pkgver == "" {
		var alias struct {
			Version string `yaml:"version"`
		}
		if err := yaml.Unmarshal(data, &alias); err == nil {
			rec.Pkgver = alias.Version
		}
	}
	if len(rec.SrcURL) > 0 {
		if rec.PkgID == "" {
			rec.PkgID = derivePkgID(rec.SrcURL[0])
		}
		if rec.AppID == "" {
			rec.AppID = derivePkgID(rec.SrcURL[0])
		}
	}
	return &rec, nil
}
