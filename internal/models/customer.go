package models

import "time"

// Customer is one repair record: the device a customer dropped off, what was
// done to it and what it cost.
type Customer struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CustomerName  string     `gorm:"size:100" json:"customer_name"`
	PhoneNumber   string     `gorm:"size:15" json:"phone_number"`
	DeviceTypeID  *uint      `gorm:"column:device_type" json:"device_type"`
	Warranty      string     `gorm:"size:100" json:"warranty"`
	Model         string     `gorm:"size:100" json:"model"`
	RepairType    string     `gorm:"size:100" json:"repair_type"`
	ReceivedDate  *time.Time `gorm:"type:date" json:"received_date"`
	DeliveryDate  *time.Time `gorm:"type:date" json:"delivery_date"`
	Cost          float64    `gorm:"type:decimal(10,2)" json:"cost"`
	InvoiceNumber string     `gorm:"size:50" json:"invoice_number"`
	CreatedBy     *uint      `json:"created_by"`
	ModifiedBy    *uint      `json:"modified_by"`
	CreatedAt     time.Time  `json:"created_at"`
	ModifiedAt    *time.Time `json:"modified_at"`
	IsActive      bool       `gorm:"default:true" json:"is_active"`

	DeviceType *DeviceType `gorm:"foreignKey:DeviceTypeID;references:ID" json:"device_type_ref,omitempty"`
}

func (Customer) TableName() string { return "customers" }
