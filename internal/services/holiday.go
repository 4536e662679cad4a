package services

import (
	"sort"
	"strings"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/at"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/be"
	"github.com/rickar/cal/v2/br"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/ch"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/dk"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fi"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/ie"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/no"
	"github.com/rickar/cal/v2/nz"
	"github.com/rickar/cal/v2/pl"
	"github.com/rickar/cal/v2/pt"
	"github.com/rickar/cal/v2/se"
	"github.com/rickar/cal/v2/us"
)

// countryChina is served by the lunar calendar, which also knows the
// make-up working weekends.
const countryChina = "CN"

type CountryInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var holidaySets = map[string]struct {
	name     string
	holidays []*cal.Holiday
}{
	"US": {"United States", us.Holidays},
	"GB": {"United Kingdom", gb.Holidays},
	"DE": {"Germany", de.Holidays},
	"FR": {"France", fr.Holidays},
	"JP": {"Japan", jp.Holidays},
	"AU": {"Australia", au.HolidaysNSW},
	"CA": {"Canada", ca.Holidays},
	"NZ": {"New Zealand", nz.Holidays},
	"IT": {"Italy", it.Holidays},
	"ES": {"Spain", es.Holidays},
	"NL": {"Netherlands", nl.Holidays},
	"BE": {"Belgium", be.Holidays},
	"AT": {"Austria", at.Holidays},
	"CH": {"Switzerland", ch.Holidays},
	"SE": {"Sweden", se.Holidays},
	"NO": {"Norway", no.Holidays},
	"DK": {"Denmark", dk.Holidays},
	"FI": {"Finland", fi.Holidays},
	"PL": {"Poland", pl.Holidays},
	"PT": {"Portugal", pt.Holidays},
	"IE": {"Ireland", ie.Holidays},
	"BR": {"Brazil", br.Holidays},
}

// HolidayService answers whether reminders should be held back on a given day.
type HolidayService struct {
	calendars map[string]*cal.BusinessCalendar
}

func NewHolidayService() *HolidayService {
	s := &HolidayService{calendars: make(map[string]*cal.BusinessCalendar, len(holidaySets))}
	for code, set := range holidaySets {
		c := cal.NewBusinessCalendar()
		c.Name = set.name
		c.AddHoliday(set.holidays...)
		s.calendars[code] = c
	}
	return s
}

// IsWorkday falls back to a plain Monday to Friday week for unknown codes.
func (s *HolidayService) IsWorkday(t time.Time, countryCode string) bool {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	if code == countryChina {
		return isWorkdayChina(t)
	}
	if c, ok := s.calendars[code]; ok {
		return c.IsWorkday(t)
	}
	return !cal.IsWeekend(t)
}

func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	if holiday := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay()); holiday != nil {
		return holiday.IsWork()
	}
	return !cal.IsWeekend(t)
}

func (s *HolidayService) IsHoliday(t time.Time, countryCode string) bool {
	return !s.IsWorkday(t, countryCode)
}

// ShouldPause reports whether a reminder run at t is suppressed. Without a
// country only weekends pause; with one, public holidays pause too.
func (s *HolidayService) ShouldPause(t time.Time, pauseOnWeekends bool, countryCode string) bool {
	if !pauseOnWeekends {
		return false
	}
	if strings.TrimSpace(countryCode) == "" {
		return cal.IsWeekend(t)
	}
	return !s.IsWorkday(t, countryCode)
}

func (s *HolidayService) GetSupportedCountries() []CountryInfo {
	countries := make([]CountryInfo, 0, len(holidaySets)+1)
	countries = append(countries, CountryInfo{Code: countryChina, Name: "China"})
	for code, set := range holidaySets {
		countries = append(countries, CountryInfo{Code: code, Name: set.name})
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Code < countries[j].Code })
	return countries
}
