// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// 对话索引任务的动作。
const (
	ActionIndex  = "index"
	ActionDelete = "delete"
)

// ChatIndexTask 通知后台消费者（重新）索引或删除一个对话。
type ChatIndexTask struct {
	ChatID string `json:"chat_id"`
	UserID uint   `json:"user_id"`
	Action string `json:"action"`
}
