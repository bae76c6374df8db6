package models

// Student and Term are read models over tables owned by the enrollment
// domain. The rebuild only resolves legacy identifiers against them.
type Student struct {
	ID       int    `gorm:"primary_key" json:"id"`
	LegacyId string `gorm:"size:64;index" json:"legacy_id"`
	Name     string `gorm:"size:255" json:"name"`
}

func (Student) TableName() string { return "students" }

type Term struct {
	ID   int    `gorm:"primary_key" json:"id"`
	Code string `gorm:"size:64;index" json:"code"`
	Name string `gorm:"size:255" json:"name"`
}

func (Term) TableName() string { return "terms" }
