package enrollment

import "time"

// Enrollment is a library entry: the (user, course) pair exists at most once
// regardless of how many paid orders or webhook replays touch it.
type Enrollment struct {
	UserID    string    `json:"userId" db:"user_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	OrderID   string    `json:"orderId" db:"order_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
