package model

import "time"

// 訂單需要真正刪除（後台刪單），不使用軟刪除
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"null" json:"updatedAt"`
}
