package models

import "time"

type MealStatus string

const (
	MealStatusPending  MealStatus = "pending_analysis"
	MealStatusComplete MealStatus = "analysis_complete"
	MealStatusFailed   MealStatus = "analysis_failed"
)

// Confidence tags how sure the detector (or the user) was about an item.
type Confidence string

const (
	ConfidenceHigh      Confidence = "alta"
	ConfidenceMedium    Confidence = "media"
	ConfidenceLow       Confidence = "baixa"
	ConfidenceCorrected Confidence = "corrigido"
)

// One saved eating occasion
type Meal struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	OwnerID          uint       `gorm:"index;not null" json:"owner_id"`
	Status           MealStatus `gorm:"size:32;not null;default:pending_analysis;index" json:"status"`
	ImageURL         *string    `gorm:"size:512" json:"imagem_url,omitempty"`
	AnalysisSnapshot *string    `gorm:"type:text" json:"-"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Items            []MealItem `gorm:"constraint:OnDelete:CASCADE" json:"alimentos"`
}

// MealItem is one detected or edited food entry. Everything but FoodID is
// frozen once the meal is saved; FoodID may be backfilled by resolution.
type MealItem struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	MealID            uint       `gorm:"index;not null" json:"refeicao_id"`
	Position          int        `gorm:"not null;default:0" json:"-"`
	Name              string     `gorm:"size:255;not null" json:"nome"`
	QuantityG         *float64   `json:"quantidade_estimada_g"`
	Category          string     `gorm:"size:100" json:"categoria_nutricional"`
	Confidence        Confidence `gorm:"size:50" json:"confianca"`
	EstimatedCalories *float64   `json:"calorias_estimadas,omitempty"`
	SuggestedMeasure  *string    `gorm:"size:100" json:"medida_caseira_sugerida,omitempty"`
	FoodID            *uint      `gorm:"index" json:"alimento_id,omitempty"`
	Food              *Food      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}
