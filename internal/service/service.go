package service

import (
	"encoding/json"
	"time"

	"attendly/internal/dto"
	"attendly/internal/model"
	"attendly/internal/repo"
	"attendly/internal/schedule"
	"attendly/pkg/validator"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	GetSession(ctx *ginext.Context)
	Apply(ctx *ginext.Context)
	Lookup(ctx *ginext.Context)
	Cancel(ctx *ginext.Context)
}

// Publisher is the slice of the rabbit client the service needs.
type Publisher interface {
	Publish(message []byte) error
}

type service struct {
	repo repo.Repository
	sch  schedule.Schedule
	log  *zerolog.Logger
	pub  Publisher
}

func NewService(repo repo.Repository, sch schedule.Schedule, logger *zerolog.Logger, pub Publisher) Service {
	return &service{
		repo: repo,
		sch:  sch,
		log:  logger,
		pub:  pub,
	}
}

func (s *service) GetSession(ctx *ginext.Context) {
	state, date := schedule.Current(time.Now(), s.sch)

	switch state {
	case schedule.NoneScheduled:
		dto.SuccessResponse(ctx, dto.SessionResponse{State: "none_scheduled"})
	case schedule.NotYetOpen:
		dto.SuccessResponse(ctx, dto.SessionResponse{State: "not_yet_open", AttendDate: date})
	case schedule.Open:
		count, err := s.repo.CountActive(ctx.Request.Context(), date)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to count registrations")
			dto.InternalServerError(ctx)
			return
		}
		remaining := s.sch.Capacity - count
		if remaining < 0 {
			remaining = 0
		}
		dto.SuccessResponse(ctx, dto.SessionResponse{
			State:      "open",
			AttendDate: date,
			Capacity:   s.sch.Capacity,
			Active:     count,
			Remaining:  remaining,
		})
	}
}

func (s *service) Apply(ctx *ginext.Context) {
	var req dto.ApplyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if !s.validateFields(ctx, req) {
		return
	}

	date, ok := s.openDate(ctx)
	if !ok {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Pin), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to hash PIN")
		dto.InternalServerError(ctx)
		return
	}

	registration := &model.Registration{
		StudentName: req.StudentName,
		StudentID:   req.StudentID,
		AttendDate:  date,
		SecretHash:  string(hash),
	}

	aid, err := s.repo.ApplyTx(ctx.Request.Context(), registration, s.sch.Capacity)
	if err != nil {
		switch err {
		case repo.ErrSessionFull:
			dto.SessionFullError(ctx)
			return
		case repo.ErrDuplicateRegistration:
			dto.RegistrationDuplicateError(ctx)
			return
		default:
			s.log.Error().Err(err).Msg("failed to create registration")
			dto.InternalServerError(ctx)
			return
		}
	}

	s.log.Info().
		Int64("aid", aid).
		Str("attend_date", date).
		Msg("registration created successfully")

	s.publishEvent(aid, req.StudentID, date, "applied")

	dto.SuccessCreatedResponse(ctx, dto.RegistrationResponse{
		AID:         aid,
		StudentName: req.StudentName,
		StudentID:   req.StudentID,
		AttendDate:  date,
		AppliedAt:   time.Now(),
		Canceled:    false,
	})
}

func (s *service) Lookup(ctx *ginext.Context) {
	registration, ok := s.authenticate(ctx)
	if !ok {
		return
	}

	dto.SuccessResponse(ctx, toResponse(registration))
}

func (s *service) Cancel(ctx *ginext.Context) {
	registration, ok := s.authenticate(ctx)
	if !ok {
		return
	}

	if err := s.repo.CancelTx(ctx.Request.Context(), registration.AID); err != nil {
		if err == repo.ErrRegistrationNotFound {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to cancel registration")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Int64("aid", registration.AID).
		Str("attend_date", registration.AttendDate).
		Msg("registration canceled successfully")

	s.publishEvent(registration.AID, registration.StudentID, registration.AttendDate, "canceled")

	registration.Canceled = true
	dto.SuccessResponse(ctx, toResponse(registration))
}

// authenticate binds and validates a lookup request, resolves the open
// session, and loads the matching active registration if the PIN checks
// out. A missing row and a wrong PIN produce the same not-found answer
// on purpose: callers cannot probe which student IDs exist.
func (s *service) authenticate(ctx *ginext.Context) (*model.Registration, bool) {
	var req dto.LookupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return nil, false
	}

	if !s.validateFields(ctx, req) {
		return nil, false
	}

	date, ok := s.openDate(ctx)
	if !ok {
		return nil, false
	}

	registration, err := s.repo.FindActive(ctx.Request.Context(), req.StudentID, date)
	if err != nil {
		if err == repo.ErrRegistrationNotFound {
			dto.RegistrationNotFoundError(ctx)
			return nil, false
		}
		s.log.Error().Err(err).Msg("failed to look up registration")
		dto.InternalServerError(ctx)
		return nil, false
	}

	if bcrypt.CompareHashAndPassword([]byte(registration.SecretHash), []byte(req.Pin)) != nil {
		dto.RegistrationNotFoundError(ctx)
		return nil, false
	}

	return registration, true
}

// validateFields reports the first broken rule with the code the
// front-end keys its messages on: one for an empty field, one for a
// malformed student ID, one for a malformed PIN.
func (s *service) validateFields(ctx *ginext.Context, req any) bool {
	verr := validator.Validate(ctx, req)
	if verr == nil {
		return true
	}

	switch verr.Tag {
	case "required":
		dto.BadResponseError(ctx, dto.FieldRequired, verr.Error())
	case "studentid":
		dto.BadResponseError(ctx, dto.StudentIDBadFormat, verr.Error())
	case "pin":
		dto.BadResponseError(ctx, dto.PinBadFormat, verr.Error())
	default:
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
	}
	return false
}

func (s *service) openDate(ctx *ginext.Context) (string, bool) {
	state, date := schedule.Current(time.Now(), s.sch)
	switch state {
	case schedule.NoneScheduled:
		dto.RegistrationClosedError(ctx, "No session is currently scheduled")
		return "", false
	case schedule.NotYetOpen:
		dto.RegistrationClosedError(ctx, "Registration for the "+date+" session has not opened yet")
		return "", false
	}
	return date, true
}

func (s *service) publishEvent(aid int64, studentID, attendDate, action string) {
	msg := dto.AttendanceEventMessage{
		AID:        aid,
		StudentID:  studentID,
		AttendDate: attendDate,
		Action:     action,
		OccurredAt: time.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal attendance event")
		return
	}
	if err := s.pub.Publish(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to publish attendance event to RabbitMQ")
	}
}

func toResponse(r *model.Registration) dto.RegistrationResponse {
	return dto.RegistrationResponse{
		AID:         r.AID,
		StudentName: r.StudentName,
		StudentID:   r.StudentID,
		AttendDate:  r.AttendDate,
		AppliedAt:   r.AppliedAt,
		Canceled:    r.Canceled,
	}
}
