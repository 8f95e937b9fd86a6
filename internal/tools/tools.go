package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aalghamdi/voicedesk/internal/observability"
	"github.com/aalghamdi/voicedesk/internal/store"
)

// Property describes one tool argument for the language model.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// Definition is the model-facing contract of a tool.
type Definition struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  map[string]Property `json:"parameters"`
	Required    []string            `json:"required"`
}

// Tool couples a definition with its handler. Handlers always return one
// terse spoken sentence: confirmations carry the record id, failures are
// apologies and never expose raw error text to the caller.
type Tool struct {
	Definition
	Handler func(ctx context.Context, args map[string]any) string
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func collectArgs(def Definition, args map[string]any) map[string]string {
	fields := make(map[string]string, len(def.Parameters))
	for name := range def.Parameters {
		fields[name] = argString(args, name)
	}
	return fields
}

// Recorder is the store-backed save half used by tool handlers.
type Recorder interface {
	Save(ctx context.Context, fields map[string]string) store.Result
}

// CountingRecorder wraps a Recorder and counts save outcomes per domain.
type CountingRecorder struct {
	Domain  string
	Rec     Recorder
	Metrics *observability.Metrics
}

func (c CountingRecorder) Save(ctx context.Context, fields map[string]string) store.Result {
	res := c.Rec.Save(ctx, fields)
	if c.Metrics != nil {
		outcome := "ok"
		if !res.Success {
			outcome = "error"
		}
		c.Metrics.RecordSaves.WithLabelValues(c.Domain, outcome).Inc()
	}
	return res
}

func saveHandler(def Definition, rec Recorder, logger *slog.Logger, success func(id string, fields map[string]string) string, apology string) func(context.Context, map[string]any) string {
	return func(ctx context.Context, args map[string]any) string {
		fields := collectArgs(def, args)
		res := rec.Save(ctx, fields)
		if !res.Success {
			logger.Error("tool save failed", "tool", def.Name, "detail", res.ErrorMessage())
			return apology
		}
		logger.Info("tool save succeeded", "tool", def.Name, "id", res.ID)
		return success(res.ID, fields)
	}
}

// NewBookingTool persists hotel room bookings.
func NewBookingTool(rec Recorder, logger *slog.Logger) Tool {
	def := Definition{
		Name:        "save_booking_record",
		Description: "Book a room at Al Faisaliah Grand Hotel. Use this tool once the guest has confirmed the booking and all required information is collected.",
		Parameters: map[string]Property{
			"guest_name":       {Type: "string", Description: "Full name of the guest making the reservation"},
			"check_in_date":    {Type: "string", Description: "Check-in date in YYYY-MM-DD format"},
			"check_out_date":   {Type: "string", Description: "Check-out date in YYYY-MM-DD format"},
			"number_of_guests": {Type: "integer", Description: "Number of guests staying"},
			"room_type":        {Type: "string", Description: "Type of room requested", Enum: []string{"Standard", "Deluxe", "Suite", "Executive Suite"}},
			"contact_phone":    {Type: "string", Description: "Contact phone number"},
			"contact_email":    {Type: "string", Description: "Contact email address"},
			"special_requests": {Type: "string", Description: "Any special requests or preferences"},
		},
		Required: []string{"guest_name", "check_in_date", "check_out_date", "number_of_guests"},
	}
	return Tool{
		Definition: def,
		Handler: saveHandler(def, rec, logger,
			func(id string, _ map[string]string) string {
				return fmt.Sprintf("Your room has been successfully booked! Your booking ID is %s. We look forward to welcoming you to Al Faisaliah Grand Hotel.", id)
			},
			"I apologize, but there was an issue processing your booking. Please try again or contact our reservations team directly."),
	}
}

// NewAppointmentTool persists medical appointments.
func NewAppointmentTool(rec Recorder, logger *slog.Logger) Tool {
	def := Definition{
		Name:        "save_appointment_record",
		Description: "Schedule a medical appointment. Use this tool once the patient has confirmed and all required information is collected.",
		Parameters: map[string]Property{
			"patient_name":     {Type: "string", Description: "Full name of the patient"},
			"appointment_date": {Type: "string", Description: "Appointment date in YYYY-MM-DD format"},
			"appointment_time": {Type: "string", Description: "Appointment time in HH:MM format"},
			"doctor_name":      {Type: "string", Description: "Preferred doctor, if any"},
			"department":       {Type: "string", Description: "Medical department, defaults to General Medicine"},
			"contact_phone":    {Type: "string", Description: "Contact phone number"},
			"contact_email":    {Type: "string", Description: "Contact email address"},
			"symptoms":         {Type: "string", Description: "Brief description of symptoms"},
		},
		Required: []string{"patient_name", "appointment_date", "appointment_time"},
	}
	return Tool{
		Definition: def,
		Handler: saveHandler(def, rec, logger,
			func(id string, _ map[string]string) string {
				return fmt.Sprintf("Your appointment has been successfully scheduled! Your appointment ID is %s. Please arrive 15 minutes before your scheduled time.", id)
			},
			"I apologize, but there was an issue processing your appointment request. Please try again or contact our reception directly."),
	}
}

// NewEnrollmentTool persists course enrollments.
func NewEnrollmentTool(rec Recorder, logger *slog.Logger) Tool {
	def := Definition{
		Name:        "save_enrollment_record",
		Description: "Enroll a student in a course. Use this tool once the student has confirmed and all required information is collected.",
		Parameters: map[string]Property{
			"student_name":       {Type: "string", Description: "Full name of the student"},
			"course_name":        {Type: "string", Description: "Name of the course"},
			"course_code":        {Type: "string", Description: "Course code, if known"},
			"enrollment_date":    {Type: "string", Description: "Enrollment date in YYYY-MM-DD format"},
			"start_date":         {Type: "string", Description: "Course start date"},
			"end_date":           {Type: "string", Description: "Course end date"},
			"instructor_name":    {Type: "string", Description: "Instructor, if known"},
			"contact_phone":      {Type: "string", Description: "Contact phone number"},
			"contact_email":      {Type: "string", Description: "Contact email address"},
			"previous_education": {Type: "string", Description: "Previous education background"},
		},
		Required: []string{"student_name", "course_name", "enrollment_date"},
	}
	return Tool{
		Definition: def,
		Handler: saveHandler(def, rec, logger,
			func(id string, fields map[string]string) string {
				return fmt.Sprintf("Your enrollment has been successfully processed! Your enrollment ID is %s. Welcome to %s!", id, fields["course_name"])
			},
			"I apologize, but there was an issue processing your enrollment. Please try again or contact our admissions office directly."),
	}
}

// NewHRRequestTool persists employee HR requests.
func NewHRRequestTool(rec Recorder, logger *slog.Logger) Tool {
	def := Definition{
		Name:        "save_hr_request_record",
		Description: "Submit an HR request on behalf of an employee. Use this tool once the employee has confirmed and all required information is collected.",
		Parameters: map[string]Property{
			"employee_name":       {Type: "string", Description: "Full name of the employee"},
			"employee_id":         {Type: "string", Description: "Employee identifier, if known"},
			"request_type":        {Type: "string", Description: "Type of request, for example Leave or Certificate"},
			"request_date":        {Type: "string", Description: "Request date in YYYY-MM-DD format"},
			"department":          {Type: "string", Description: "Employee department"},
			"contact_phone":       {Type: "string", Description: "Contact phone number"},
			"contact_email":       {Type: "string", Description: "Contact email address"},
			"request_description": {Type: "string", Description: "Details of the request"},
			"priority":            {Type: "string", Description: "Priority, defaults to Normal", Enum: []string{"Low", "Normal", "High", "Urgent"}},
		},
		Required: []string{"employee_name", "request_type", "request_date"},
	}
	return Tool{
		Definition: def,
		Handler: saveHandler(def, rec, logger,
			func(id string, _ map[string]string) string {
				return fmt.Sprintf("Your HR request has been successfully submitted! Your request ID is %s. Our HR team will review it and get back to you soon.", id)
			},
			"I apologize, but there was an issue processing your HR request. Please try again or contact the HR department directly."),
	}
}
