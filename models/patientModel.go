package models

import (
	"time"
)

// Doctor model
type Doctor struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	FirstName string    `gorm:"column:first_name;not null" json:"first_name"`
	LastName  string    `gorm:"column:last_name;not null;index" json:"last_name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Doctor) TableName() string {
	return "doctor"
}

// Patient model
type Patient struct {
	ID             string          `gorm:"primaryKey;column:id" json:"id"`
	ClinicID       string          `gorm:"column:clinic_id;not null;index" json:"clinic_id"`
	FirstName      string          `gorm:"column:first_name;not null" json:"first_name"`
	MiddleName     string          `gorm:"column:middle_name" json:"middle_name"`
	LastName       string          `gorm:"column:last_name;not null;index" json:"last_name"`
	Phone          string          `gorm:"column:phone" json:"phone"`
	Email          string          `gorm:"column:email" json:"email"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	PerformedWorks []PerformedWork `gorm:"foreignKey:PatientID;references:ID" json:"-"`
	Payments       []Payment       `gorm:"foreignKey:PatientID;references:ID" json:"-"`
}

func (Patient) TableName() string {
	return "patient"
}
