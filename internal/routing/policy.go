// Package routing classifies complaint text into a category, an urgency flag
// and the departments responsible for it. Everything here is pure.
package routing

import (
	"strings"
	"unicode"

	"github.com/psds-microservice/citizen-desk/internal/model"
)

// Route is the outcome of classification. An uncategorized route has no
// departments and is never urgent.
type Route struct {
	Category    model.Category
	Urgent      bool
	Departments []string
}

// Primary returns the department a ticket is filed under.
func (r Route) Primary() string {
	if len(r.Departments) == 0 {
		return ""
	}
	return r.Departments[0]
}

type rule struct {
	keyword  string
	category model.Category
}

// Keywords are stems matched at the start of a word of the normalized text,
// so a stem covers its inflections but not words that merely contain it
// ("яма" does not match "прямая"). Order matters: the first hit wins, so
// longer or more specific stems precede the stems they contain. A bare
// "горит" is not a fire keyword: "не горит фонарь" is a lighting report.
var rules = []rule{
	{"пожар", model.CategoryEmergFire},
	{"горит дом", model.CategoryEmergFire},
	{"горит здани", model.CategoryEmergFire},
	{"горит квартир", model.CategoryEmergFire},
	{"горит машин", model.CategoryEmergFire},
	{"горит автомобил", model.CategoryEmergFire},
	{"горит лес", model.CategoryEmergFire},
	{"горит трав", model.CategoryEmergFire},
	{"загорел", model.CategoryEmergFire},
	{"возгоран", model.CategoryEmergFire},
	{"задымлен", model.CategoryEmergFire},
	{"дым", model.CategoryEmergFire},
	{"fire", model.CategoryEmergFire},

	{"утечка газа", model.CategoryEmergGas},
	{"запах газа", model.CategoryEmergGas},
	{"пахнет газом", model.CategoryEmergGas},
	{"gas leak", model.CategoryEmergGas},

	{"скорая", model.CategoryEmergMedical},
	{"без сознания", model.CategoryEmergMedical},
	{"травм", model.CategoryEmergMedical},
	{"кровотечен", model.CategoryEmergMedical},

	{"драка", model.CategoryEmergCrime},
	{"нападен", model.CategoryEmergCrime},
	{"кража", model.CategoryEmergCrime},
	{"ограблен", model.CategoryEmergCrime},

	{"дтп", model.CategoryEmergAccident},
	{"авария на дороге", model.CategoryEmergAccident},
	{"столкновен", model.CategoryEmergAccident},

	{"водопровод", model.CategoryUtilities},
	{"канализац", model.CategoryUtilities},
	{"отоплен", model.CategoryUtilities},
	{"батаре", model.CategoryUtilities},
	{"нет воды", model.CategoryUtilities},
	{"вода", model.CategoryUtilities},

	{"светофор", model.CategoryRoads},
	{"ям", model.CategoryRoads},
	{"асфальт", model.CategoryRoads},
	{"дорог", model.CategoryRoads},

	{"фонар", model.CategoryLighting},
	{"освещен", model.CategoryLighting},
	{"электр", model.CategoryLighting},
	{"свет", model.CategoryLighting},

	{"мусор", model.CategorySanitation},
	{"свалк", model.CategorySanitation},
	{"контейнер", model.CategorySanitation},

	{"автобус", model.CategoryTransport},
	{"маршрут", model.CategoryTransport},
	{"трамва", model.CategoryTransport},
	{"остановк", model.CategoryTransport},
}

var departments = map[model.Category][]string{
	model.CategoryEmergFire:     {"fire", "police", "civil_defense"},
	model.CategoryEmergGas:      {"gas_service", "fire", "civil_defense"},
	model.CategoryEmergMedical:  {"ambulance", "police"},
	model.CategoryEmergCrime:    {"police"},
	model.CategoryEmergAccident: {"police", "ambulance"},
	model.CategoryUtilities:     {"housing"},
	model.CategoryRoads:         {"roads"},
	model.CategoryLighting:      {"energy"},
	model.CategorySanitation:    {"sanitation"},
	model.CategoryTransport:     {"transport"},
}

// Urgent reports whether c is one of the emergency categories.
func Urgent(c model.Category) bool {
	switch c {
	case model.CategoryEmergFire, model.CategoryEmergGas, model.CategoryEmergMedical,
		model.CategoryEmergCrime, model.CategoryEmergAccident:
		return true
	}
	return false
}

// Departments returns the departments notified for c; nil when unrouted.
func Departments(c model.Category) []string {
	list := departments[c]
	if list == nil {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// Classify routes a complaint. An explicit valid category wins over the text.
func Classify(text string, explicit model.Category) Route {
	category := explicit
	if category == model.CategoryNone || !category.Valid() {
		category = Detect(text)
	}
	return Route{
		Category:    category,
		Urgent:      Urgent(category),
		Departments: Departments(category),
	}
}

// Detect returns the category of the first keyword found in text, or CategoryNone.
func Detect(text string) model.Category {
	norm := Normalize(text)
	if norm == "" {
		return model.CategoryNone
	}
	padded := " " + norm
	for _, r := range rules {
		if strings.Contains(padded, " "+r.keyword) {
			return r.category
		}
	}
	return model.CategoryNone
}

// Normalize lowercases text, folds ё to е, turns punctuation into spaces and
// collapses runs of whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r == 'ё':
			r = 'е'
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		default:
			r = ' '
		}
		if r == ' ' {
			if space {
				continue
			}
			space = true
		} else {
			space = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
