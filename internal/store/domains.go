package store

// Column order is the file header order and must stay stable.

func BookingSpec() Spec {
	return Spec{
		Domain:         "booking",
		Prefix:         "BK",
		IDField:        "booking_id",
		TimestampField: "booking_timestamp",
		Columns: []string{
			"booking_id",
			"guest_name",
			"check_in_date",
			"check_out_date",
			"number_of_guests",
			"room_type",
			"contact_phone",
			"contact_email",
			"special_requests",
			"booking_timestamp",
			"status",
		},
		Required:      []string{"guest_name", "check_in_date", "check_out_date", "number_of_guests"},
		Defaults:      map[string]string{"room_type": "Standard"},
		InitialStatus: "Confirmed",
	}
}

func AppointmentSpec() Spec {
	return Spec{
		Domain:         "appointment",
		Prefix:         "APT",
		IDField:        "appointment_id",
		TimestampField: "appointment_timestamp",
		Columns: []string{
			"appointment_id",
			"patient_name",
			"appointment_date",
			"appointment_time",
			"doctor_name",
			"department",
			"contact_phone",
			"contact_email",
			"symptoms",
			"appointment_timestamp",
			"status",
		},
		Required:      []string{"patient_name", "appointment_date", "appointment_time"},
		Defaults:      map[string]string{"department": "General Medicine"},
		InitialStatus: "Scheduled",
	}
}

func EnrollmentSpec() Spec {
	return Spec{
		Domain:         "enrollment",
		Prefix:         "ENR",
		IDField:        "enrollment_id",
		TimestampField: "enrollment_timestamp",
		Columns: []string{
			"enrollment_id",
			"student_name",
			"course_name",
			"course_code",
			"enrollment_date",
			"start_date",
			"end_date",
			"instructor_name",
			"contact_phone",
			"contact_email",
			"previous_education",
			"enrollment_timestamp",
			"status",
		},
		Required:      []string{"student_name", "course_name", "enrollment_date"},
		InitialStatus: "Enrolled",
	}
}

func HRRequestSpec() Spec {
	return Spec{
		Domain:         "hr_request",
		Prefix:         "HR",
		IDField:        "request_id",
		TimestampField: "request_timestamp",
		Columns: []string{
			"request_id",
			"employee_name",
			"employee_id",
			"request_type",
			"request_date",
			"department",
			"contact_phone",
			"contact_email",
			"request_description",
			"priority",
			"request_timestamp",
			"status",
		},
		Required:      []string{"employee_name", "request_type", "request_date"},
		Defaults:      map[string]string{"priority": "Normal"},
		InitialStatus: "Submitted",
	}
}
