package service

import (
	"sort"
	"strings"
	"time"

	"github.com/wiresocks/wiresocks-ui/database/model"
)

// ServerDirectory is an immutable snapshot of the upstream server list.
type ServerDirectory struct {
	Servers   []model.ServerRecord
	FetchedAt time.Time
}

// CountryOptions builds the selection list: one entry per country, plus
// "Country - Location" entries for countries with several locations.
func (d *ServerDirectory) CountryOptions() []string {
	if d == nil {
		return nil
	}
	byCountry := make(map[string]map[string]bool)
	for _, s := range d.Servers {
		if byCountry[s.Country] == nil {
			byCountry[s.Country] = make(map[string]bool)
		}
		byCountry[s.Country][s.Location] = true
	}

	countries := make([]string, 0, len(byCountry))
	for c := range byCountry {
		countries = append(countries, c)
	}
	sort.Strings(countries)

	var options []string
	for _, c := range countries {
		options = append(options, c)
		if len(byCountry[c]) > 1 {
			locations := make([]string, 0, len(byCountry[c]))
			for l := range byCountry[c] {
				locations = append(locations, l)
			}
			sort.Strings(locations)
			for _, l := range locations {
				options = append(options, c+" - "+l)
			}
		}
	}
	return options
}

// BySelection filters servers for a "Country" or "Country - Location"
// selection. Location matching falls back to a trimmed case-insensitive
// comparison when the exact form misses.
func (d *ServerDirectory) BySelection(selection string) []model.ServerRecord {
	if d == nil {
		return nil
	}
	country, location, hasLocation := strings.Cut(selection, " - ")
	if !hasLocation {
		var out []model.ServerRecord
		for _, s := range d.Servers {
			if s.Country == selection {
				out = append(out, s)
			}
		}
		return out
	}

	var out []model.ServerRecord
	for _, s := range d.Servers {
		if s.Country == country && s.Location == location {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		want := strings.ToLower(strings.TrimSpace(location))
		for _, s := range d.Servers {
			if s.Country == country && strings.ToLower(strings.TrimSpace(s.Location)) == want {
				out = append(out, s)
			}
		}
	}
	return out
}

// BestServer picks the lowest-load server from the candidates.
func BestServer(servers []model.ServerRecord) (model.ServerRecord, bool) {
	if len(servers) == 0 {
		return model.ServerRecord{}, false
	}
	best := servers[0]
	for _, s := range servers[1:] {
		if s.Load < best.Load {
			best = s
		}
	}
	return best, true
}
