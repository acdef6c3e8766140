package lookup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Suggestion is one candidate from a name resolution.
type Suggestion struct {
	Code int64  `json:"code"`
	Name string `json:"name"`
}

// Resolution caps, kept small so tool latency stays bounded.
const (
	matchLimit       = 8
	suggestionLimit  = 6
	minFuzzyQueryLen = 3
)

// Table holds every vocabulary in one immutable value. Construct with Load;
// never mutate after construction. Hot reload builds a new Table and swaps
// the pointer wholesale so concurrent readers never see a half-updated
// state.
type Table struct {
	cityCodes map[string]int64 // normalized name -> code
	cityNames map[int64]string // code -> canonical name
	typeCodes map[string]int64
	typeNames map[int64]string

	companyNames map[int64]string // code -> display name
	companyIDs   map[string]int64 // normalized name -> code
	recent       map[int64]struct{}

	// companyOrder fixes a deterministic scan order for fuzzy suggestion
	// passes.
	companyOrder []int64
}

// Load reads all lookup files under root. Missing files yield empty tables,
// not errors, so a partially provisioned deployment still boots.
func Load(root string) (*Table, error) {
	t := &Table{
		cityCodes:    map[string]int64{},
		cityNames:    map[int64]string{},
		typeCodes:    map[string]int64{},
		typeNames:    map[int64]string{},
		companyNames: map[int64]string{},
		companyIDs:   map[string]int64{},
		recent:       map[int64]struct{}{},
	}

	var cities map[string]int64
	if err := readJSON(filepath.Join(root, "mudurluk_codes.json"), &cities); err != nil {
		return nil, err
	}
	for name, code := range cities {
		t.cityCodes[Normalize(name)] = code
		if _, ok := t.cityNames[code]; !ok {
			t.cityNames[code] = name
		}
	}

	var types map[string]int64
	if err := readJSON(filepath.Join(root, "ilan_turu_codes.json"), &types); err != nil {
		return nil, err
	}
	for name, code := range types {
		t.typeCodes[Normalize(name)] = code
		if _, ok := t.typeNames[code]; !ok {
			t.typeNames[code] = name
		}
	}

	var vocab map[string]string
	if err := readJSON(filepath.Join(root, "unvan_vocab.json"), &vocab); err != nil {
		return nil, err
	}
	for sid, name := range vocab {
		cid, err := strconv.ParseInt(sid, 10, 64)
		if err != nil {
			continue
		}
		t.companyNames[cid] = name
	}
	t.companyOrder = make([]int64, 0, len(t.companyNames))
	for cid := range t.companyNames {
		t.companyOrder = append(t.companyOrder, cid)
	}
	sort.Slice(t.companyOrder, func(i, j int) bool { return t.companyOrder[i] < t.companyOrder[j] })

	var nameToID map[string]int64
	if err := readJSON(filepath.Join(root, "unvan_name_to_id.json"), &nameToID); err != nil {
		return nil, err
	}
	for name, cid := range nameToID {
		key := Normalize(name)
		if key == "" {
			continue
		}
		if _, ok := t.companyIDs[key]; !ok {
			t.companyIDs[key] = cid
		}
	}

	if path := findRecentIDsFile(root); path != "" {
		var ids []int64
		if err := readJSON(path, &ids); err != nil {
			return nil, err
		}
		for _, id := range ids {
			t.recent[id] = struct{}{}
		}
	}

	return t, nil
}

// readJSON decodes path into v, treating a missing file as absent data.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading lookup %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing lookup %s: %w", path, err)
	}
	return nil
}

// findRecentIDsFile picks the recent-company-ids file with the largest year
// window, e.g. recent_company_ids_y10.json over recent_company_ids_y5.json.
func findRecentIDsFile(root string) string {
	matches, err := filepath.Glob(filepath.Join(root, "recent_company_ids_y*.json"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	best, bestYears := "", -1
	for _, m := range matches {
		base := filepath.Base(m)
		numPart := strings.TrimSuffix(strings.TrimPrefix(base, "recent_company_ids_y"), ".json")
		years, err := strconv.Atoi(numPart)
		if err != nil {
			continue
		}
		if years > bestYears {
			best, bestYears = m, years
		}
	}
	return best
}

// CityName returns the canonical city name, falling back to the numeric code.
func (t *Table) CityName(code int64) string {
	if name, ok := t.cityNames[code]; ok {
		return name
	}
	return strconv.FormatInt(code, 10)
}

// TypeName returns the canonical announcement-type name, falling back to the
// numeric code.
func (t *Table) TypeName(code int64) string {
	if name, ok := t.typeNames[code]; ok {
		return name
	}
	return strconv.FormatInt(code, 10)
}

// CompanyName returns the display name for a company code, or "".
func (t *Table) CompanyName(code int64) string {
	return t.companyNames[code]
}

// IsRecentCompany reports whether the code appears in the recent-ids set.
func (t *Table) IsRecentCompany(code int64) bool {
	_, ok := t.recent[code]
	return ok
}

// ResolveCity resolves a city name exactly; Suggestions fall back to a small
// prefix/substring scan.
func (t *Table) ResolveCity(name string) (int64, bool) {
	code, ok := t.cityCodes[Normalize(name)]
	return code, ok
}

// SuggestCities returns up to six prefix/substring matches for a city name.
func (t *Table) SuggestCities(name string) []Suggestion {
	return suggestFromCodes(t.cityCodes, t.cityNames, Normalize(name))
}

// ResolveType resolves an announcement-type name exactly.
func (t *Table) ResolveType(term string) (int64, bool) {
	code, ok := t.typeCodes[Normalize(term)]
	return code, ok
}

// SuggestTypes returns up to six prefix/substring matches for a type name.
func (t *Table) SuggestTypes(term string) []Suggestion {
	return suggestFromCodes(t.typeCodes, t.typeNames, Normalize(term))
}

func suggestFromCodes(codes map[string]int64, names map[int64]string, q string) []Suggestion {
	if q == "" {
		return nil
	}
	keys := make([]string, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var opts []Suggestion
	for _, canon := range keys {
		if strings.HasPrefix(canon, q) || strings.Contains(canon, q) {
			code := codes[canon]
			name := names[code]
			if name == "" {
				name = canon
			}
			opts = append(opts, Suggestion{Code: code, Name: name})
			if len(opts) >= suggestionLimit {
				break
			}
		}
	}
	return opts
}

// ResolveCompany resolves a company name exactly via the normalized name map.
func (t *Table) ResolveCompany(name string) (int64, bool) {
	code, ok := t.companyIDs[Normalize(name)]
	return code, ok
}

// SuggestCompanies runs the bounded fuzzy passes: recent companies first,
// then a global scan, matching rows whose normalized name contains every
// query token. Results rank recent companies first, then alphabetically.
func (t *Table) SuggestCompanies(name string) []Suggestion {
	q := Normalize(name)
	if len(q) < minFuzzyQueryLen {
		return nil
	}
	tokens := strings.Fields(q)
	if len(tokens) == 0 {
		return nil
	}

	seen := map[int64]struct{}{}
	var opts []Suggestion
	scan := func(recentOnly bool) {
		for _, cid := range t.companyOrder {
			if len(opts) >= matchLimit {
				return
			}
			if recentOnly && !t.IsRecentCompany(cid) {
				continue
			}
			if _, dup := seen[cid]; dup {
				continue
			}
			nn := Normalize(t.companyNames[cid])
			if containsAll(nn, tokens) {
				seen[cid] = struct{}{}
				opts = append(opts, Suggestion{Code: cid, Name: t.companyNames[cid]})
			}
		}
	}
	scan(true)
	if len(opts) < matchLimit {
		scan(false)
	}

	sort.SliceStable(opts, func(i, j int) bool {
		ri, rj := t.IsRecentCompany(opts[i].Code), t.IsRecentCompany(opts[j].Code)
		if ri != rj {
			return ri
		}
		return opts[i].Name < opts[j].Name
	})
	if len(opts) > matchLimit {
		opts = opts[:matchLimit]
	}
	return opts
}

func containsAll(text string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(text, tok) {
			return false
		}
	}
	return true
}
