package model

import (
	"fmt"
	"time"
)

// LocalTime 以 "YYYY-MM-DD HH:MM:SS" 格式输出时间，用于导出文件等面向人的场景。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// String 返回本地时区下的格式化时间。
func (t LocalTime) String() string {
	return time.Time(t).Local().Format(timeFormat)
}

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", t.String())
	return []byte(formatted), nil
}
