package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatStatus 记录创建流程推进到了哪一步，失败的创建可以据此续跑。
type ChatStatus string

const (
	ChatStatusTextExtracted ChatStatus = "text_extracted"
	ChatStatusSummarized    ChatStatus = "summarized"
	ChatStatusTitled        ChatStatus = "titled"
)

// Chat 是围绕一张上传图片及其识别文本展开的一次对话。
type Chat struct {
	ID            string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        uint          `gorm:"index;not null" json:"userId"`
	ImageURL      string        `gorm:"type:varchar(512);not null" json:"imageUrl"`
	ExtractedText string        `gorm:"type:longtext;not null" json:"extractedText"`
	Title         string        `gorm:"type:varchar(255)" json:"title"`
	Status        ChatStatus    `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt     time.Time     `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
	Interactions  []Interaction `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE;" json:"interactions,omitempty"`
}

func (Chat) TableName() string {
	return "chats"
}

// BeforeCreate 为新记录生成 UUID。
func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// OwnedBy 报告该对话是否属于指定用户。
func (c *Chat) OwnedBy(userID uint) bool {
	return c != nil && c.UserID == userID
}

// Interaction 是对话中的一轮问答；Question 为空表示创建时自动生成的摘要。
type Interaction struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID    string    `gorm:"type:varchar(36);index;not null" json:"chatId"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:longtext;not null" json:"answer"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Interaction) TableName() string {
	return "interactions"
}

// BeforeCreate 为新记录生成 UUID。
func (i *Interaction) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// IsSummary 报告这是否是创建对话时的开场摘要。
func (i Interaction) IsSummary() bool {
	return i.Question == ""
}
