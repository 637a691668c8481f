package admission

import (
	"time"

	"AttendGate/internal/model"
	"AttendGate/pkg/errors"
)

// Decision 准入结论
type Decision string

const (
	Admitted Decision = "ADMITTED"
	Rejected Decision = "REJECTED"
)

// Admission 准入成功后的记录信息
type Admission struct {
	Time         time.Time
	AttendanceID string
	Status       model.AttendanceStatus
}

// Outcome 一次准入的结构化结果
// 拒绝是业务结果而不是错误，Admit 返回的 error 只表示基础设施故障
type Outcome struct {
	Admission *Admission
	Reason    errors.Definition
	Decision  Decision
}

func Admit(a Admission) Outcome {
	return Outcome{Decision: Admitted, Admission: &a}
}

func Reject(reason errors.Definition) Outcome {
	return Outcome{Decision: Rejected, Reason: reason}
}

func (o Outcome) IsAdmitted() bool {
	return o.Decision == Admitted
}

// Message 面向用户的说明
func (o Outcome) Message() string {
	if o.IsAdmitted() {
		return ""
	}
	return o.Reason.Message
}
