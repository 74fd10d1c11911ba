package models

// DeviceType is a master-data row for the kinds of devices the shop repairs.
type DeviceType struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:100" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

func (DeviceType) TableName() string { return "device_types" }
