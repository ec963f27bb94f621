package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldIncorrect     = "FIELD_INCORRECT"
	FieldRequired      = "FIELD_REQUIRED"
	StudentIDBadFormat = "STUDENT_ID_BADFORMAT"
	PinBadFormat       = "PIN_BADFORMAT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	RegistrationClosed    = "REGISTRATION_CLOSED"
	SessionFull           = "SESSION_FULL"
	RegistrationDuplicate = "REGISTRATION_DUPLICATE"
	RegistrationNotFound  = "REGISTRATION_NOT_FOUND"
)

type ApplyRequest struct {
	StudentName string `json:"student_name" validate:"required"`
	StudentID   string `json:"student_id" validate:"required,studentid"`
	Pin         string `json:"pin" validate:"required,pin"`
}

type LookupRequest struct {
	StudentID string `json:"student_id" validate:"required,studentid"`
	Pin       string `json:"pin" validate:"required,pin"`
}

type RegistrationResponse struct {
	AID         int64     `json:"aid"`
	StudentName string    `json:"student_name"`
	StudentID   string    `json:"student_id"`
	AttendDate  string    `json:"attend_date"`
	AppliedAt   time.Time `json:"applied_at"`
	Canceled    bool      `json:"canceled"`
}

// SessionResponse describes the session the selector picked for the
// current moment. Capacity figures are present only when registration
// is open.
type SessionResponse struct {
	State      string `json:"state"`
	AttendDate string `json:"attend_date,omitempty"`
	Capacity   int    `json:"capacity,omitempty"`
	Active     int    `json:"active,omitempty"`
	Remaining  int    `json:"remaining,omitempty"`
}

// AttendanceEventMessage is what gets published to RabbitMQ after a
// successful apply or cancel, for staff notification.
type AttendanceEventMessage struct {
	AID        int64     `json:"aid"`
	StudentID  string    `json:"student_id"`
	AttendDate string    `json:"attend_date"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func RegistrationClosedError(c *ginext.Context, desc string) {
	BadResponseError(c, RegistrationClosed, desc)
}

func SessionFullError(c *ginext.Context) {
	BadResponseError(c, SessionFull, "Session is full, no more seats are available")
}

func RegistrationDuplicateError(c *ginext.Context) {
	BadResponseError(c, RegistrationDuplicate, "You have already applied for this session")
}

func RegistrationNotFoundError(c *ginext.Context) {
	BadResponseError(c, RegistrationNotFound, "No registration found for this student ID and PIN")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
