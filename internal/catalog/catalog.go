// Package catalog loads the UK MPA reference data: the master list of sites
// with their WDPA codes and the per-site protected features.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mpawatch/mpawatch/internal/models"
)

// ErrNotFound is returned when none of the candidate paths exist.
var ErrNotFound = errors.New("catalog file not found")

var masterColumns = []string{"Site_Name", "WDPA_Code", "Latitude", "Longitude", "Area_ha"}

// Catalog is an immutable in-memory view of the reference CSVs.
type Catalog struct {
	mpas     []models.MPA
	byCode   map[string]models.MPA
	features []indexedFeatures
}

// SiteFeatures lists the protected features designated for one site.
type SiteFeatures struct {
	SiteName string
	Features []string
}

type indexedFeatures struct {
	lower    string
	features []string
}

// New builds a catalog from already loaded data.
func New(mpas []models.MPA, features []SiteFeatures) *Catalog {
	byCode := make(map[string]models.MPA, len(mpas))
	for _, m := range mpas {
		if _, ok := byCode[m.WDPACode]; !ok {
			byCode[m.WDPACode] = m
		}
	}

	indexed := make([]indexedFeatures, 0, len(features))
	for _, sf := range features {
		indexed = append(indexed, indexedFeatures{
			lower:    strings.ToLower(sf.SiteName),
			features: sf.Features,
		})
	}
	return &Catalog{mpas: mpas, byCode: byCode, features: indexed}
}

// Empty returns a catalog with no sites and no features.
func Empty() *Catalog {
	return New(nil, nil)
}

// MPAs returns every site, sorted by name.
func (c *Catalog) MPAs() []models.MPA {
	out := make([]models.MPA, len(c.mpas))
	copy(out, c.mpas)
	return out
}

// Lookup finds a site by WDPA code.
func (c *Catalog) Lookup(wdpaCode string) (models.MPA, bool) {
	m, ok := c.byCode[wdpaCode]
	return m, ok
}

// ProtectedFeatures returns the features of the first site whose name
// contains mpaName, ignoring case. It returns an empty slice when nothing
// matches.
func (c *Catalog) ProtectedFeatures(mpaName string) []string {
	needle := strings.ToLower(strings.TrimSpace(mpaName))
	if needle == "" {
		return []string{}
	}
	for _, sf := range c.features {
		if strings.Contains(sf.lower, needle) {
			return append([]string{}, sf.features...)
		}
	}
	return []string{}
}

// LoadMPAs reads the master CSV from the first existing path. Rows missing
// any required column are skipped. Sites are de-duplicated by name, keeping
// the first, and sorted by name.
func LoadMPAs(paths []string) ([]models.MPA, error) {
	rows, err := readFirst(paths)
	if err != nil {
		return nil, err
	}

	idx, err := columnIndex(rows.header, masterColumns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rows.path, err)
	}

	seen := make(map[string]struct{})
	var mpas []models.MPA

	for _, rec := range rows.records {
		m, ok := parseMPA(rec, idx)
		if !ok {
			continue
		}
		if _, dup := seen[m.SiteName]; dup {
			continue
		}
		seen[m.SiteName] = struct{}{}
		mpas = append(mpas, m)
	}

	sort.SliceStable(mpas, func(i, j int) bool {
		return mpas[i].SiteName < mpas[j].SiteName
	})
	return mpas, nil
}

func parseMPA(rec []string, idx map[string]int) (models.MPA, bool) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	name := field("Site_Name")
	if name == "" {
		return models.MPA{}, false
	}

	code, err := normaliseWDPACode(field("WDPA_Code"))
	if err != nil {
		return models.MPA{}, false
	}

	var nums [3]float64
	for i, col := range []string{"Latitude", "Longitude", "Area_ha"} {
		v, err := strconv.ParseFloat(field(col), 64)
		if err != nil {
			return models.MPA{}, false
		}
		nums[i] = v
	}

	return models.MPA{
		SiteName:  name,
		WDPACode:  code,
		Latitude:  nums[0],
		Longitude: nums[1],
		AreaHa:    nums[2],
	}, true
}

// normaliseWDPACode turns spreadsheet renderings such as "555556875.0" into
// the integer code string the upstream region lookup expects.
func normaliseWDPACode(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty WDPA code")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", fmt.Errorf("invalid WDPA code %q: %w", raw, err)
	}
	return strconv.FormatInt(int64(f), 10), nil
}

// LoadFeatures reads the protected-features CSV from the first existing path.
func LoadFeatures(paths []string) ([]SiteFeatures, error) {
	rows, err := readFirst(paths)
	if err != nil {
		return nil, err
	}

	idx, err := columnIndex(rows.header, "Site_Name", "Features")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rows.path, err)
	}

	var out []SiteFeatures
	for _, rec := range rows.records {
		if idx["Site_Name"] >= len(rec) {
			continue
		}
		name := strings.TrimSpace(rec[idx["Site_Name"]])
		if name == "" {
			continue
		}
		var raw string
		if idx["Features"] < len(rec) {
			raw = rec[idx["Features"]]
		}
		out = append(out, SiteFeatures{
			SiteName: name,
			Features: splitFeatures(raw),
		})
	}
	return out, nil
}

func splitFeatures(raw string) []string {
	features := []string{}
	for _, f := range strings.Split(raw, ";") {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	return features
}

type csvRows struct {
	path    string
	header  []string
	records [][]string
}

func readFirst(paths []string) (csvRows, error) {
	for _, path := range paths {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return csvRows{}, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		header, records, err := readCSV(f)
		if err != nil {
			return csvRows{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return csvRows{path: path, header: header, records: records}, nil
	}
	return csvRows{}, fmt.Errorf("%w: tried %s", ErrNotFound, strings.Join(paths, ", "))
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return header, records, nil
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	return idx, nil
}
