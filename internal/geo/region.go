// Package geo holds the bounding-region rule, deterministic marker jitter and
// the postal-code coordinate resolver.
package geo

import (
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/listings-cli/internal/model"
)

// Region is an inclusive latitude/longitude bounding box.
type Region struct {
	Name   string  `yaml:"name"`
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// IleDeFrance approximates the Paris metropolitan region.
var IleDeFrance = Region{
	Name:   "ile-de-france",
	MinLat: 48.0,
	MaxLat: 49.3,
	MinLon: 1.45,
	MaxLon: 3.57,
}

// Contains reports whether the pair is finite and inside the box.
func (r Region) Contains(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// Validate returns c when it lies inside the region and nil otherwise.
func (r Region) Validate(c *model.Coordinates) *model.Coordinates {
	if c == nil || !r.Contains(c.Latitude, c.Longitude) {
		return nil
	}
	return c
}

// Check rejects inverted or out-of-range bounds.
func (r Region) Check() error {
	switch {
	case r.MinLat >= r.MaxLat:
		return eris.Errorf("geo: region %q: min_lat %v must be below max_lat %v", r.Name, r.MinLat, r.MaxLat)
	case r.MinLon >= r.MaxLon:
		return eris.Errorf("geo: region %q: min_lon %v must be below max_lon %v", r.Name, r.MinLon, r.MaxLon)
	case r.MinLat < -90 || r.MaxLat > 90:
		return eris.Errorf("geo: region %q: latitude out of range", r.Name)
	case r.MinLon < -180 || r.MaxLon > 180:
		return eris.Errorf("geo: region %q: longitude out of range", r.Name)
	}
	return nil
}

// Builtin returns the region presets shipped with the binary.
func Builtin() map[string]Region {
	return map[string]Region{
		IleDeFrance.Name: IleDeFrance,
		"paris": {
			Name:   "paris",
			MinLat: 48.815,
			MaxLat: 48.902,
			MinLon: 2.224,
			MaxLon: 2.47,
		},
	}
}

// LoadRegions reads region presets from a YAML file of the form:
//
//	regions:
//	  - name: lyon
//	    min_lat: 45.55
//	    ...
func LoadRegions(path string) (map[string]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read regions %s", path)
	}

	var wrapper struct {
		Regions []Region `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "geo: parse regions")
	}

	out := make(map[string]Region, len(wrapper.Regions))
	for _, r := range wrapper.Regions {
		if r.Name == "" {
			return nil, eris.New("geo: region without name")
		}
		if err := r.Check(); err != nil {
			return nil, err
		}
		out[r.Name] = r
	}
	return out, nil
}

// Presets merges the builtin regions with those of an optional YAML file.
// File entries override builtins of the same name.
func Presets(path string) (map[string]Region, error) {
	presets := Builtin()
	if path == "" {
		return presets, nil
	}
	fromFile, err := LoadRegions(path)
	if err != nil {
		return nil, err
	}
	for name, r := range fromFile {
		presets[name] = r
	}
	return presets, nil
}

// Lookup returns the named preset.
func Lookup(presets map[string]Region, name string) (Region, error) {
	r, ok := presets[name]
	if !ok {
		names := make([]string, 0, len(presets))
		for n := range presets {
			names = append(names, n)
		}
		sort.Strings(names)
		return Region{}, eris.Errorf("geo: unknown region %q (known: %v)", name, names)
	}
	return r, nil
}
