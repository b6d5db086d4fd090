package models

import "time"

const (
	FoodSourceReference = "reference"
	FoodSourceEstimated = "estimated"
)

// Food is the canonical nutrient reference for 100 grams of a food.
// NormalizedName is the lookup key and is unique across the table.
type Food struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Name           string `gorm:"size:255;not null" json:"alimento"`
	NormalizedName string `gorm:"size:255;uniqueIndex;not null" json:"alimento_normalizado"`
	Category       string `gorm:"size:255;index" json:"categoria"`
	Source         string `gorm:"size:16;not null;default:reference" json:"fonte"`

	// macros, per 100g
	EnergyKcal100g   float64 `json:"energia_kcal_100g"`
	Protein100g      float64 `json:"proteina_g_100g"`
	Carbohydrate100g float64 `json:"carboidrato_g_100g"`
	Fat100g          float64 `json:"lipidios_g_100g"`
	Fiber100g        float64 `json:"fibra_g_100g"`

	// micros, per 100g
	SodiumMg100g        float64 `json:"sodio_mg_100g"`
	PotassiumMg100g     float64 `json:"potassio_mg_100g"`
	CalciumMg100g       float64 `json:"calcio_mg_100g"`
	IronMg100g          float64 `json:"ferro_mg_100g"`
	MagnesiumMg100g     float64 `json:"magnesio_mg_100g"`
	CholesterolMg100g   float64 `json:"colesterol_mg_100g"`
	SaturatedFatG       float64 `json:"ac_graxos_saturados_g"`
	MonounsaturatedFatG float64 `json:"ac_graxos_monoinsaturados_g"`
	PolyunsaturatedFatG float64 `json:"ac_graxos_poliinsaturados_g"`

	// household measure hint, e.g. 1 "escumadeira cheia" ≈ 45g
	Units            float64 `json:"unidades"`
	HouseholdMeasure string  `gorm:"size:255" json:"un_medida_caseira"`
	ApproxWeightG    float64 `json:"peso_aproximado_g"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
