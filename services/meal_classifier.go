package services

import (
	"strings"
)

type MealType string

const (
	MealBreakfast      MealType = "Café da Manhã"
	MealLunch          MealType = "Almoço"
	MealAfternoonSnack MealType = "Lanche da Tarde"
	MealDinner         MealType = "Jantar"
	MealLateSnack      MealType = "Lanche da Noite"
)

const placeholderMealName = "Refeição"

// ClassifyTime labels a meal by the local hour it was eaten.
func ClassifyTime(hour int) MealType {
	switch {
	case hour >= 5 && hour < 11:
		return MealBreakfast
	case hour >= 11 && hour < 15:
		return MealLunch
	case hour >= 15 && hour < 18:
		return MealAfternoonSnack
	case hour >= 18 && hour < 23:
		return MealDinner
	default:
		return MealLateSnack
	}
}

// SuggestName builds a short display name from the first item names.
func SuggestName(names []string) string {
	top := make([]string, 0, 3)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		top = append(top, n)
		if len(top) == 3 {
			break
		}
	}

	switch len(top) {
	case 0:
		return placeholderMealName
	case 1:
		return top[0]
	case 2:
		return top[0] + " e " + top[1]
	default:
		return top[0] + ", " + top[1] + " e mais"
	}
}
